// Package rule 封装 go-playground/validator，统一使用 "rule" 标签.
//
// 除内置规则外还注册了几个配置相关的规则:
//
//	mediatype  合法的 MIME 类型，如 text/plain
//	ratekey    限流维度：global、ip 或 header:Header-Name
//	cron       标准五段 cron 表达式
package rule

import (
	"errors"
	"fmt"
	"mime"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

var (
	inst *validator.Validate
	once sync.Once
)

// initValidator 复用 gin 的 validator 引擎，不可用时新建.
func initValidator() {
	inst = nil

	if engine := binding.Validator.Engine(); engine != nil {
		if v, ok := engine.(*validator.Validate); ok {
			inst = v
		}
	}

	if inst == nil {
		inst = validator.New()
	}

	inst.SetTagName("rule")

	for tag, fn := range map[string]validator.Func{
		"mediatype": isMediaType,
		"ratekey":   isRateKey,
		"cron":      isCron,
	} {
		if err := inst.RegisterValidation(tag, fn); err != nil {
			panic(fmt.Sprintf("rule: register %s: %v", tag, err))
		}
	}
}

func lazyInit() {
	once.Do(initValidator)
}

// Engine 返回全局 *validator.Validate.
func Engine() *validator.Validate {
	lazyInit()

	return inst
}

// RegisterValidation 注册自定义规则.
func RegisterValidation(tag string, fn validator.Func, opts ...bool) error {
	lazyInit()

	return inst.RegisterValidation(tag, fn, opts...)
}

// ValidationErrors 字段命名空间到可读错误信息的映射.
type ValidationErrors map[string]string

// Errors 将 ValidateStruct 的错误展开为 ValidationErrors，非校验错误返回 nil.
func Errors(err error) ValidationErrors {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}

	out := make(ValidationErrors, len(verrs))

	for _, fe := range verrs {
		msg := "failed on " + fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}

		out[fe.Namespace()] = msg
	}

	return out
}

// ValidateStruct 对结构体执行完整校验，返回原始 error（可用 Errors 解析）.
func ValidateStruct(s any) error {
	lazyInit()

	return inst.Struct(s)
}

// ValidateVar 按规则对单个变量校验，例如: ValidateVar("abc", "required,email").
func ValidateVar(field any, tag string) error {
	lazyInit()

	return inst.Var(field, tag)
}

// RegisterAlias 注册别名规则.
func RegisterAlias(alias, rules string) {
	lazyInit()

	inst.RegisterAlias(alias, rules)
}

func isMediaType(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if !strings.Contains(s, "/") {
		return false
	}

	_, _, err := mime.ParseMediaType(s)

	return err == nil
}

func isRateKey(fl validator.FieldLevel) bool {
	s := fl.Field().String()

	switch {
	case s == "global", s == "ip":
		return true
	case strings.HasPrefix(s, "header:"):
		return strings.TrimSpace(strings.TrimPrefix(s, "header:")) != ""
	default:
		return false
	}
}

// isCron 空值交给 required 系列规则判断.
func isCron(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" {
		return true
	}

	_, err := cron.ParseStandard(s)

	return err == nil
}
