package configs

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultUploadFieldName       = "files[]"         // 入站 multipart 文件字段名
	DefaultUploadMaxFileSize     = 15 << 20          // 单文件大小上限（15MiB）
	DefaultUploadMaxFormOverhead = 1 << 20           // 表单框架与其它字段的额外字节预算
	DefaultUploadFilePrefix      = "upload-"         // 临时文件名前缀
	DefaultUploadSweepMaxAge     = time.Hour         // 清理任务删除超过该时长的临时文件
	DefaultUploadSweepCron       = "*/10 * * * *"    // 清理任务 cron 表达式
	DefaultUploadTempDirName     = "hsrelay-uploads" // 默认临时目录名
)

// DefaultAllowedTypes 允许上传的 MIME 类型.
var DefaultAllowedTypes = []string{
	"text/plain",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/pdf",
}

// UploadConfig 上传校验与临时存储配置.
type UploadConfig struct {
	FieldName       string        `mapstructure:"field_name"        rule:"required"`
	MaxFileSize     int64         `mapstructure:"max_file_size"     rule:"min=1"`
	MaxFormOverhead int64         `mapstructure:"max_form_overhead" rule:"min=0"`
	AllowedTypes    []string      `mapstructure:"allowed_types"     rule:"min=1,dive,required,mediatype"`
	TempDir         string        `mapstructure:"temp_dir"          rule:"required"`
	FilePrefix      string        `mapstructure:"file_prefix"`
	SweepEnabled    bool          `mapstructure:"sweep_enabled"`
	SweepCron       string        `mapstructure:"sweep_cron"        rule:"required_if=SweepEnabled true,cron"`
	SweepMaxAge     time.Duration `mapstructure:"sweep_max_age"     rule:"min=0"`
}

// MaxRequestBytes 返回整个请求体允许读取的字节上限.
func (c *UploadConfig) MaxRequestBytes() int64 {
	return c.MaxFileSize + c.MaxFormOverhead
}

// setDefaults 设置上传配置的默认值.
func (c *UploadConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("upload.field_name", DefaultUploadFieldName)
	v.SetDefault("upload.max_file_size", DefaultUploadMaxFileSize)
	v.SetDefault("upload.max_form_overhead", DefaultUploadMaxFormOverhead)
	v.SetDefault("upload.allowed_types", DefaultAllowedTypes)
	v.SetDefault("upload.temp_dir", filepath.Join(os.TempDir(), DefaultUploadTempDirName))
	v.SetDefault("upload.file_prefix", DefaultUploadFilePrefix)
	v.SetDefault("upload.sweep_enabled", true)
	v.SetDefault("upload.sweep_cron", DefaultUploadSweepCron)
	v.SetDefault("upload.sweep_max_age", DefaultUploadSweepMaxAge)
}
