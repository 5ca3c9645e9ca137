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

// 自己定義常用的權限常量
const (
	// rw-r--r-- (擁有者讀寫，其他人唯讀) - 適用於大多數檔案
	FileModeReadOnly fs.FileMode = 0644

	// rw------- (只有擁有者可讀寫) - 適用於私鑰、機密檔
	FileModePrivate fs.FileMode = 0600
)

var (
	// ErrClosed WAL 已關閉
	ErrClosed = errors.New("wal: closed")
)

// WAL 以 JSON Lines 格式追加寫入的 Write-Ahead Log
//
// 寫入採用 group commit：每個 Write 先把資料放進共用 buffer，
// 再由第一個搶到 syncMu 的呼叫者把整批資料寫入並 fsync，
// 同一批之內的其他呼叫者直接沿用這次 fsync 的結果。
// 任何一次寫入或 fsync 失敗之後 WAL 會停在失敗狀態，之後的 Write 都回傳同一個錯誤。
type WAL struct {
	file *os.File

	// mu 保護 pending / appended / closed
	mu       sync.Mutex
	pending  []byte
	appended uint64
	closed   bool

	// syncMu 同時間只有一個 flusher
	syncMu sync.Mutex
	spare  []byte
	synced uint64
	size   int64
	err    error
}

// NewWAL 開啟或建立一個 WAL 檔案
// O_RDWR讀寫模式
// O_APPEND 每次寫入時自動跳到文件末尾
// O_CREATE 如果文件不存在則建立
func NewWAL(path string) (*WAL, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, FileModeReadOnly)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	return &WAL{
		file: file,
		size: info.Size(),
	}, nil
}

// Write 寫入一筆資料，回傳時資料已經 fsync 到硬碟
func (w *WAL) Write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("wal: encode record: %w", err)
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	w.pending = append(w.pending, data...)
	w.pending = append(w.pending, '\n')
	w.appended++
	seq := w.appended
	w.mu.Unlock()

	return w.waitDurable(seq)
}

// waitDurable 等到第 seq 筆資料寫入硬碟
func (w *WAL) waitDurable(seq uint64) error {
	w.syncMu.Lock()
	defer w.syncMu.Unlock()

	if w.err != nil {
		return w.err
	}
	if w.synced >= seq {
		return nil
	}
	return w.flushLocked()
}

// flushLocked 把目前累積的資料一次寫入並 fsync，呼叫者必須持有 syncMu
func (w *WAL) flushLocked() error {
	w.mu.Lock()
	batch := w.pending
	upto := w.appended
	w.pending = w.spare[:0]
	w.mu.Unlock()

	if len(batch) == 0 {
		w.synced = upto
		return nil
	}

	if _, err := w.file.Write(batch); err != nil {
		return w.fail(fmt.Errorf("wal: write: %w", err))
	}
	if err := w.file.Sync(); err != nil {
		return w.fail(fmt.Errorf("wal: sync: %w", err))
	}

	w.size += int64(len(batch))
	w.synced = upto
	w.spare = batch[:0]
	return nil
}

// fail 嘗試把檔案截回最後一次成功的位置，並記住錯誤
func (w *WAL) fail(err error) error {
	_ = w.file.Truncate(w.size)
	w.err = err
	return err
}

// Close 寫出剩餘資料後關閉檔案
func (w *WAL) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	w.closed = true
	w.mu.Unlock()

	w.syncMu.Lock()
	defer w.syncMu.Unlock()
	var flushErr error
	if w.err == nil {
		flushErr = w.flushLocked()
	}
	if err := w.file.Close(); err != nil {
		return err
	}
	return flushErr
}

// ReadAll 從頭依序讀取所有資料
// callback 接收一行 JSON，這樣可以避免一次將所有資料載入記憶體
// 最後一行若沒有換行符號，代表當機時尚未 fsync 完成，該筆從未回報成功，直接截掉
func (w *WAL) ReadAll(callback func(jsonRaw []byte) error) error {
	w.syncMu.Lock()
	defer w.syncMu.Unlock()

	// 確保從頭讀取
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return err
	}

	reader := bufio.NewReader(w.file)
	var offset int64
	for {
		line, err := reader.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			if len(line) > 0 {
				if err := w.file.Truncate(offset); err != nil {
					return fmt.Errorf("wal: truncate torn tail: %w", err)
				}
				w.size = offset
			}
			return nil
		}
		if err != nil {
			return err
		}
		offset += int64(len(line))

		raw := bytes.TrimSpace(line)
		if len(raw) == 0 {
			continue
		}
		if err := callback(raw); err != nil {
			return err
		}
	}
}
