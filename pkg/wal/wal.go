package wal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
)

// rw------- (只有擁有者可讀寫) - 適用於私鑰、機密檔
const FileModePrivate fs.FileMode = 0600

// ErrBroken 寫入失敗後無法把檔案復原到上一筆完整資料，WAL 不再接受寫入
var ErrBroken = errors.New("wal: log is broken")

// logFile *os.File 用到的部分
type logFile interface {
	io.ReadWriteSeeker
	io.Closer
	Sync() error
	Truncate(size int64) error
}

// WAL 以 JSON Lines 格式追加寫入的 Write-Ahead Log
type WAL struct {
	file logFile
	mu   sync.Mutex
	// size 最後一筆已持久化資料的結尾位置
	size   int64
	broken error
}

// NewWAL 開啟或建立一個 WAL 檔案
// O_RDWR讀寫模式
// O_APPEND 每次寫入時自動跳到文件末尾
// O_CREATE 如果文件不存在則建立
func NewWAL(path string) (*WAL, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, FileModePrivate)
	if err != nil {
		return nil, err
	}
	size, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	return &WAL{file: file, size: size}, nil
}

// Write 寫入一筆資料並刷入硬碟，回傳 nil 才代表資料已持久化
func (w *WAL) Write(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("wal encode: %w", err)
	}
	raw = append(raw, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.broken != nil {
		return fmt.Errorf("%w: %v", ErrBroken, w.broken)
	}
	if _, err := w.file.Write(raw); err != nil {
		return w.rollback(fmt.Errorf("wal write: %w", err))
	}
	if err := w.file.Sync(); err != nil {
		return w.rollback(fmt.Errorf("wal sync: %w", err))
	}
	w.size += int64(len(raw))
	return nil
}

// rollback 寫入失敗時把檔案截回上一筆完整資料的結尾，回傳錯誤的資料重啟後不會被重播。
// 截不回去時 WAL 進入 broken 狀態，之後的寫入一律失敗。
func (w *WAL) rollback(cause error) error {
	if err := w.file.Truncate(w.size); err != nil {
		w.broken = fmt.Errorf("truncate to %d after %v: %w", w.size, cause, err)
		return fmt.Errorf("%w: %v", ErrBroken, w.broken)
	}
	return cause
}

// Close 關閉檔案
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

// ReadAll 依寫入順序讀取所有資料
// callback 一次只拿到一筆 json.RawMessage，避免一次將所有資料載入記憶體
//
// 若最後一筆只寫了一半 (寫入途中當機)，該筆會被截掉，檔案恢復到最後一筆完整資料的位置。
func (w *WAL) ReadAll(callback func(jsonRaw []byte) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	// 確保從頭讀取
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return err
	}

	decoder := json.NewDecoder(bufio.NewReader(w.file))
	var good int64
	for {
		var raw json.RawMessage
		if err := decoder.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				size, err := w.file.Seek(0, io.SeekEnd)
				if err != nil {
					return err
				}
				w.size = size
				return nil
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				if err := w.file.Truncate(good); err != nil {
					return err
				}
				w.size = good
				return nil
			}
			return fmt.Errorf("wal corrupted at offset %d: %w", good, err)
		}
		if err := callback(raw); err != nil {
			return err
		}
		good = decoder.InputOffset()
	}
}
