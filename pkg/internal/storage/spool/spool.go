// Package spool 提供请求级的临时文件存储：上传内容先落盘，再按需读入内存.
//
// 每个请求通过 Store.Scope 获得一个 Scope，Scope 创建的所有文件在 Cleanup 时统一删除.
// 文件系统通过 afero 抽象，生产使用 OsFs，测试可使用 MemMapFs.
//
// Example:
//
//	store, _ := spool.New(afero.NewOsFs(), "/tmp/hsrelay", "upload-")
//	scope := store.Scope()
//	defer scope.Cleanup()
//
//	f, _ := scope.Create()
//	_, _ = io.Copy(f, src)
//	_ = f.Seal()
package spool

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/yeisme/hsrelay/pkg/configs"
	"github.com/yeisme/hsrelay/pkg/metrics"
)

// ErrReleased 文件已被删除后再访问.
var ErrReleased = errors.New("spool: file already released")

// Store 管理临时目录.
type Store struct {
	fs     afero.Fs
	dir    string
	prefix string
}

// New 创建 Store，目录不存在时自动创建.
func New(fs afero.Fs, dir, prefix string) (*Store, error) {
	if err := fs.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create spool dir %s: %w", dir, err)
	}

	return &Store{fs: fs, dir: dir, prefix: prefix}, nil
}

// NewFromConfig 使用本地文件系统和上传配置创建 Store.
func NewFromConfig(cfg configs.UploadConfig) (*Store, error) {
	return New(afero.NewOsFs(), cfg.TempDir, cfg.FilePrefix)
}

// Dir 返回临时目录.
func (s *Store) Dir() string {
	return s.dir
}

// Fs 返回底层文件系统.
func (s *Store) Fs() afero.Fs {
	return s.fs
}

// Scope 创建一个新的请求级作用域.
func (s *Store) Scope() *Scope {
	return &Scope{store: s}
}

// Sweep 删除目录中修改时间早于 now-maxAge 的临时文件，返回删除数量.
// 只处理带本 Store 前缀的文件，单个文件删除失败不会中断遍历.
func (s *Store) Sweep(maxAge time.Duration, now time.Time) (int, error) {
	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return 0, fmt.Errorf("read spool dir: %w", err)
	}

	cutoff := now.Add(-maxAge)
	removed := 0

	var errs []error

	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), s.prefix) {
			continue
		}

		if e.ModTime().After(cutoff) {
			continue
		}

		if err := s.fs.Remove(filepath.Join(s.dir, e.Name())); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("remove %s: %w", e.Name(), err))
			continue
		}

		removed++
	}

	metrics.SpoolSwept.Add(float64(removed))

	return removed, errors.Join(errs...)
}

// Scope 请求级作用域，记录其创建的全部文件.
type Scope struct {
	store *Store

	mu    sync.Mutex
	files []*File
}

// Create 在临时目录中创建一个独占的新文件，返回可写句柄.
func (sc *Scope) Create() (*File, error) {
	path := filepath.Join(sc.store.dir, sc.store.prefix+uuid.NewString())

	h, err := sc.store.fs.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create spool file: %w", err)
	}

	f := &File{fs: sc.store.fs, path: path, w: h}

	sc.mu.Lock()
	sc.files = append(sc.files, f)
	sc.mu.Unlock()

	metrics.SpoolFilesActive.Inc()

	return f, nil
}

// Files 返回作用域内已创建文件的数量.
func (sc *Scope) Files() int {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	return len(sc.files)
}

// Cleanup 删除作用域内的所有文件，可重复调用.
// 返回聚合的删除错误，调用方只需记录日志.
func (sc *Scope) Cleanup() error {
	sc.mu.Lock()
	files := sc.files
	sc.files = nil
	sc.mu.Unlock()

	var errs []error

	for _, f := range files {
		if err := f.Remove(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// File 单个临时文件.
type File struct {
	fs   afero.Fs
	path string

	mu       sync.Mutex
	w        afero.File
	size     int64
	released atomic.Bool
}

// Write 追加写入内容.
func (f *File) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.released.Load() {
		return 0, ErrReleased
	}

	if f.w == nil {
		return 0, fmt.Errorf("spool: write to sealed file %s", f.path)
	}

	n, err := f.w.Write(p)
	f.size += int64(n)

	return n, err
}

// Seal 关闭写句柄，之后只能通过 Open 读取.
func (f *File) Seal() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.w == nil {
		return nil
	}

	err := f.w.Close()
	f.w = nil

	return err
}

// Open 打开只读句柄.
func (f *File) Open() (io.ReadCloser, error) {
	if f.released.Load() {
		return nil, ErrReleased
	}

	r, err := f.fs.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("open spool file: %w", err)
	}

	return r, nil
}

// Path 返回文件路径.
func (f *File) Path() string {
	return f.path
}

// Size 返回已写入的字节数.
func (f *File) Size() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.size
}

// Released 报告文件是否已被删除.
func (f *File) Released() bool {
	return f.released.Load()
}

// Remove 关闭并删除文件，幂等.
func (f *File) Remove() error {
	if f.released.Swap(true) {
		return nil
	}

	metrics.SpoolFilesActive.Dec()

	_ = f.Seal()

	if err := f.fs.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove spool file %s: %w", f.path, err)
	}

	return nil
}
