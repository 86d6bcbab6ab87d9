// Package context 把请求级依赖放进 context.Context，handler 与 service 不直接持有全局状态.
package context

import (
	"context"

	"github.com/yeisme/hsrelay/pkg/internal/classifier"
	"github.com/yeisme/hsrelay/pkg/internal/storage"
)

type managerKey struct{}

// WithStorageManager 返回携带 mgr 的 context.
func WithStorageManager(ctx context.Context, mgr *storage.Manager) context.Context {
	return context.WithValue(ctx, managerKey{}, mgr)
}

// GetManager 取出 Manager，未注入时返回 nil.
func GetManager(ctx context.Context) *storage.Manager {
	mgr, _ := ctx.Value(managerKey{}).(*storage.Manager)
	return mgr
}

// GetClassifier 取出上游分类客户端.
func GetClassifier(ctx context.Context) *classifier.Client {
	if mgr := GetManager(ctx); mgr != nil {
		return mgr.GetClassifier()
	}

	return nil
}
