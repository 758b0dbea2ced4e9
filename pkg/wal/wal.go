package wal

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
)

// rw-r--r-- (擁有者讀寫，其他人唯讀)
const FileMode fs.FileMode = 0644

// WAL 以 JSON lines 追加寫入的 Write-Ahead Log，每次寫入都會 fsync
//
// 一行一筆資料；寫入失敗會把檔案截回寫入前的長度，所以檔案裡只會有完整寫入成功的資料，
// 唯一例外是行程在寫入途中掛掉留下的半行，由 ReadAll 截掉
type WAL struct {
	file *os.File
	mu   sync.Mutex
	// sync 預設為 file.Sync，測試可替換
	sync func() error
	// torn ReadAll 截掉的位元組數
	torn int64
}

// NewWAL 開啟或建立一個 WAL 檔案
// O_RDWR讀寫模式
// O_APPEND 每次寫入時自動跳到文件末尾
// O_CREATE 如果文件不存在則建立
func NewWAL(path string) (*WAL, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, FileMode)
	if err != nil {
		return nil, err
	}
	return &WAL{file: file, sync: file.Sync}, nil
}

// Write 寫入一筆資料並刷入硬碟，回傳 nil 才代表資料已落地
//
// 回傳錯誤時檔案會被截回寫入前的長度，重啟後不會重播這筆資料
func (w *WAL) Write(v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()

	offset, err := w.file.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}
	if _, err := w.file.Write(line); err != nil {
		return w.rollback(offset, err)
	}
	if err := w.sync(); err != nil {
		return w.rollback(offset, err)
	}
	return nil
}

// rollback 把檔案截回 offset；截不回去時兩個錯誤都回傳
func (w *WAL) rollback(offset int64, cause error) error {
	if err := w.file.Truncate(offset); err != nil {
		return errors.Join(cause, fmt.Errorf("wal: truncate to %d: %w", offset, err))
	}
	return cause
}

// Close 關閉檔案
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

// ReadAll 讀取所有資料
// callback 接收每一筆 JSON 原始資料，避免一次將所有資料載入記憶體
//
// 最後一行不完整 (沒有換行或不是合法 JSON) 視為寫入途中當機，會被截掉並停止讀取；
// 中間的壞資料則回傳錯誤
func (w *WAL) ReadAll(callback func(jsonRaw []byte) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	// 確保從頭讀取
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	w.torn = 0

	reader := bufio.NewReader(w.file)
	var offset int64
	for {
		line, readErr := reader.ReadBytes('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return readErr
		}
		if len(line) == 0 {
			return nil
		}

		complete := line[len(line)-1] == '\n'
		raw := bytes.TrimSpace(line)
		switch {
		case len(raw) == 0:
		case !complete || !json.Valid(raw):
			if complete && !atEOF(reader) {
				return fmt.Errorf("wal: corrupted record at offset %d", offset)
			}
			return w.truncateTail(offset)
		default:
			if err := callback(raw); err != nil {
				return err
			}
		}
		offset += int64(len(line))
		if readErr != nil {
			return nil
		}
	}
}

// TornBytes 最近一次 ReadAll 截掉的位元組數
func (w *WAL) TornBytes() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.torn
}

func (w *WAL) truncateTail(offset int64) error {
	info, err := w.file.Stat()
	if err != nil {
		return err
	}
	if err := w.file.Truncate(offset); err != nil {
		return fmt.Errorf("wal: truncate torn tail at %d: %w", offset, err)
	}
	w.torn = info.Size() - offset
	return w.sync()
}

func atEOF(r *bufio.Reader) bool {
	_, err := r.Peek(1)
	return errors.Is(err, io.EOF)
}
