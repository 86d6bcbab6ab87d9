// Package queue 定义消息主题常量，供发布/订阅使用.
package queue

// 主题命名规范：hs.<域>.<状态>，尽量稳定且向后兼容.
const (
	// 分类领域.
	TopicClassificationCompleted = "hs.classification.completed" // 上游返回 2xx 且响应为合法 JSON
	TopicClassificationFailed    = "hs.classification.failed"    // 校验、提取或上游调用任一阶段失败

	// 通配模式（NATS 风格），用于订阅整个分类域.
	PatternClassificationAll = "hs.classification.>"
)

// AllTopics 返回全部已定义主题.
func AllTopics() []string {
	return []string{TopicClassificationCompleted, TopicClassificationFailed}
}
