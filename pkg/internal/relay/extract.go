package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
)

// DefaultChunkSize 提取内容时单次读取的字节数.
const DefaultChunkSize = 32 << 10

// ExtractedPayload 已读入内存的文件内容及元数据，只在单次请求内存活.
type ExtractedPayload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Extractor 把临时文件内容读入内存.
type Extractor struct {
	chunkSize int
}

// NewExtractor 创建 Extractor，chunkSize<=0 时使用 DefaultChunkSize.
func NewExtractor(chunkSize int) *Extractor {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	return &Extractor{chunkSize: chunkSize}
}

// Extract 按块读取文件，每块之间检查 ctx，读取长度必须与写入长度一致.
func (x *Extractor) Extract(ctx context.Context, file *AcceptedFile) (*ExtractedPayload, error) {
	if file == nil || file.Handle == nil {
		return nil, newError(KindIOFailure, "extract", errors.New("no file handle"))
	}

	rc, err := file.Handle.Open()
	if err != nil {
		return nil, newError(KindIOFailure, "extract.open", err)
	}
	defer rc.Close()

	buf := bytes.NewBuffer(make([]byte, 0, file.Size))
	chunk := make([]byte, x.chunkSize)

	for {
		if err := ctx.Err(); err != nil {
			return nil, newError(KindIOFailure, "extract.read", err).withSub(SubCanceled)
		}

		n, err := rc.Read(chunk)
		buf.Write(chunk[:n])

		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, newError(KindIOFailure, "extract.read", err)
		}
	}

	if int64(buf.Len()) != file.Size {
		return nil, newError(KindIOFailure, "extract.read",
			fmt.Errorf("short read: got %d of %d bytes", buf.Len(), file.Size))
	}

	return &ExtractedPayload{
		Filename:    file.Filename,
		ContentType: file.ContentType,
		Data:        buf.Bytes(),
	}, nil
}
