// Package relay 实现文件上传中继流水线：入口校验、内容提取、转发到分类服务.
//
// 三个阶段严格顺序执行，临时文件由调用方持有的 spool.Scope 统一清理：
//
//	scope := store.Scope()
//	defer scope.Cleanup()
//
//	file, err := intake.Accept(ctx, w, r, scope)
//	payload, err := extractor.Extract(ctx, file)
//	result, err := forwarder.Forward(ctx, payload)
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/yeisme/hsrelay/pkg/configs"
	"github.com/yeisme/hsrelay/pkg/internal/storage/spool"
	"github.com/yeisme/hsrelay/pkg/log"
)

// AcceptedFile 通过校验的单个上传文件，内容仍在临时存储中.
type AcceptedFile struct {
	Filename    string // 原始文件名，可能为空
	ContentType string // 已归一化的 MIME 类型，必属于允许列表
	Size        int64
	Handle      *spool.File
}

// Intake 校验入站 multipart 请求并把唯一的合格文件写入临时存储.
type Intake struct {
	fieldName       string
	maxFileSize     int64
	maxRequestBytes int64
	allowed         map[string]struct{}
}

// NewIntake 根据上传配置创建 Intake.
func NewIntake(cfg configs.UploadConfig) *Intake {
	allowed := make(map[string]struct{}, len(cfg.AllowedTypes))
	for _, t := range cfg.AllowedTypes {
		allowed[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}

	return &Intake{
		fieldName:       cfg.FieldName,
		maxFileSize:     cfg.MaxFileSize,
		maxRequestBytes: cfg.MaxRequestBytes(),
		allowed:         allowed,
	}
}

// Allowed 报告 contentType（可带参数）是否在允许列表中.
func (in *Intake) Allowed(contentType string) bool {
	_, ok := in.allowed[normalizeType(contentType)]
	return ok
}

// Accept 流式解析请求体，返回唯一的合格文件.
//
// 请求体整体受 MaxBytesReader 限制，单文件通过 LimitReader 写入临时文件，
// 超限时立即停止读取. 失败前创建的临时文件仍归 scope 所有，由调用方清理.
func (in *Intake) Accept(ctx context.Context, w http.ResponseWriter, r *http.Request, scope *spool.Scope) (*AcceptedFile, error) {
	if r.Method != http.MethodPost {
		return nil, newError(KindMethodNotAllowed, "intake", fmt.Errorf("method %s", r.Method))
	}

	r.Body = http.MaxBytesReader(w, r.Body, in.maxRequestBytes)

	mr, err := r.MultipartReader()
	if err != nil {
		return nil, newError(KindParseFailure, "intake.reader", err).withSub(SubMalformed)
	}

	l := log.FromContext(ctx)

	var accepted *AcceptedFile

	for {
		if err := ctx.Err(); err != nil {
			return nil, newError(KindParseFailure, "intake.next", err).withSub(SubCanceled)
		}

		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, in.readError("intake.next", err)
		}

		filename, isFile := fileName(part)
		if !isFile || part.FormName() != in.fieldName {
			_ = part.Close()
			continue
		}

		ctype := normalizeType(part.Header.Get("Content-Type"))
		if _, ok := in.allowed[ctype]; !ok {
			l.Debug().Str("file_name", filename).Str("content_type", ctype).Msg("excluded upload with disallowed type")

			_ = part.Close()

			continue
		}

		// 出错时直接返回不关闭 part，Close 会把剩余内容读完.
		if accepted != nil {
			return nil, newError(KindParseFailure, "intake.count", errors.New("more than one file")).withSub(SubTooManyFiles)
		}

		file, err := in.spoolPart(scope, part)
		if err != nil {
			return nil, err
		}

		_ = part.Close()

		accepted = &AcceptedFile{
			Filename:    filename,
			ContentType: ctype,
			Size:        file.Size(),
			Handle:      file,
		}
	}

	if accepted == nil {
		return nil, newError(KindNoFileProvided, "intake", errors.New("no qualifying file part"))
	}

	return accepted, nil
}

// spoolPart 把一个文件 part 写入临时文件，最多读取 maxFileSize+1 字节.
func (in *Intake) spoolPart(scope *spool.Scope, part *multipart.Part) (*spool.File, error) {
	file, err := scope.Create()
	if err != nil {
		return nil, newError(KindParseFailure, "intake.spool", err)
	}

	n, err := io.Copy(file, io.LimitReader(part, in.maxFileSize+1))
	if err != nil {
		return nil, in.readError("intake.spool", err)
	}

	if n > in.maxFileSize {
		return nil, newError(KindParseFailure, "intake.spool",
			fmt.Errorf("file exceeds %d bytes", in.maxFileSize)).withSub(SubTooLarge)
	}

	if n == 0 {
		return nil, newError(KindParseFailure, "intake.spool", errors.New("empty file")).withSub(SubEmptyFile)
	}

	if err := file.Seal(); err != nil {
		return nil, newError(KindParseFailure, "intake.spool", err)
	}

	return file, nil
}

// readError 区分请求体超限与格式错误.
func (in *Intake) readError(op string, err error) *Error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return newError(KindParseFailure, op, err).withSub(SubTooLarge)
	}

	return newError(KindParseFailure, op, err).withSub(SubMalformed)
}

// fileName 返回 part 的文件名以及它是否为文件 part（带 filename 参数，允许为空）.
func fileName(part *multipart.Part) (string, bool) {
	_, params, err := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
	if err != nil {
		return "", false
	}

	if _, ok := params["filename"]; !ok {
		return "", false
	}

	// FileName 会去掉路径部分
	return part.FileName(), true
}

// normalizeType 去掉 MIME 参数并转为小写.
func normalizeType(contentType string) string {
	if contentType == "" {
		return ""
	}

	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}

	return mt
}
