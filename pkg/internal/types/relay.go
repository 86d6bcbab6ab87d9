// Package types 定义 HTTP 接口的请求与响应结构.
package types

// ErrorResponse 上传接口的错误响应，error 为固定文案.
type ErrorResponse struct {
	Error string `json:"error"`
}

// AnalyseRequest 文本分析请求.
type AnalyseRequest struct {
	Text string `json:"text" rule:"required"`
}

// AnalyseResponse 文本分析响应，成功与失败都只有 text 字段.
// 成功时 text 为上游 JSON 的字符串形式.
type AnalyseResponse struct {
	Text string `json:"text"`
}

// HealthResponse 健康检查响应.
type HealthResponse struct {
	Status   string `json:"status"`
	Upstream string `json:"upstream,omitempty"`
	Error    string `json:"error,omitempty"`
}
