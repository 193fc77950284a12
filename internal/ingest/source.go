package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"starlink-api/internal/position"
)

// Source：惰性、有限、不可重启的原始记录流；耗尽时返回 io.EOF
// 单条记录结构错误返回 *position.ValidationError 且流可继续；其它错误视为流已损坏
type Source interface {
	Next(ctx context.Context) (position.RawRecord, error)
}

type jsonSource struct {
	br      *bufio.Reader
	dec     *json.Decoder
	array   bool
	started bool
	done    bool
}

// NewJSONSource：支持顶层 JSON 数组与逐行 JSON 对象两种输入，逐元素解码，不整体载入
func NewJSONSource(r io.Reader) Source {
	return &jsonSource{br: bufio.NewReaderSize(r, 64*1024)}
}

func (s *jsonSource) start() error {
	s.started = true
	// 跳过前导空白后窥视首字节决定格式
	for {
		b, err := s.br.Peek(1)
		if err != nil {
			return err
		}
		switch b[0] {
		case ' ', '\t', '\r', '\n':
			if _, err := s.br.ReadByte(); err != nil {
				return err
			}
			continue
		}
		s.array = b[0] == '['
		break
	}
	s.dec = json.NewDecoder(s.br)
	if s.array {
		if _, err := s.dec.Token(); err != nil {
			return fmt.Errorf("read array start: %w", err)
		}
	}
	return nil
}

func (s *jsonSource) Next(ctx context.Context) (position.RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return position.RawRecord{}, err
	}
	if s.done {
		return position.RawRecord{}, io.EOF
	}
	if !s.started {
		if err := s.start(); err != nil {
			s.done = true
			if errors.Is(err, io.EOF) {
				return position.RawRecord{}, io.EOF
			}
			return position.RawRecord{}, err
		}
	}
	if !s.dec.More() {
		s.done = true
		if s.array {
			if _, err := s.dec.Token(); err != nil {
				return position.RawRecord{}, fmt.Errorf("read array end: %w", unexpected(err))
			}
		}
		return position.RawRecord{}, io.EOF
	}
	var msg json.RawMessage
	if err := s.dec.Decode(&msg); err != nil {
		s.done = true
		if errors.Is(err, io.EOF) && !s.array {
			return position.RawRecord{}, io.EOF
		}
		return position.RawRecord{}, fmt.Errorf("decode element: %w", unexpected(err))
	}
	return position.DecodeRaw(msg)
}

// unexpected：数组未闭合即结束属于截断，不能当作正常耗尽
func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// SourceCloser：持有底层文件的记录流
type SourceCloser interface {
	Source
	io.Closer
}

type fileSource struct {
	Source
	f *os.File
}

func (s *fileSource) Close() error { return s.f.Close() }

// OpenFile：打开文件作为记录流；调用方负责 Close
func OpenFile(path string) (SourceCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &fileSource{Source: NewJSONSource(f), f: f}, nil
}
