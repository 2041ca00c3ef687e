package logger

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileLogger writes JSON lines to a rotating file. Entries are queued and
// written in batches; when the queue is full new entries are dropped and
// counted rather than blocking the caller.
type FileLogger struct {
	config   *Config
	logger   *lumberjack.Logger
	buffer   chan *LogEntry
	batchBuf []*LogEntry
	dropped  atomic.Int64

	closeOnce sync.Once
	closeChan chan struct{}
	wg        sync.WaitGroup
}

// NewFileLogger creates the file tier
func NewFileLogger(config *Config) (*FileLogger, error) {
	if !config.File.Enabled {
		return nil, fmt.Errorf("file logging is not enabled")
	}

	fl := &FileLogger{
		config: config,
		logger: &lumberjack.Logger{
			Filename:   config.File.Path,
			MaxSize:    config.File.MaxSizeMB,
			MaxBackups: config.File.MaxBackups,
			MaxAge:     config.File.MaxAgeDays,
			Compress:   config.File.Compress,
		},
		buffer:    make(chan *LogEntry, config.File.BufferSize),
		batchBuf:  make([]*LogEntry, 0, config.File.BatchSize),
		closeChan: make(chan struct{}),
	}

	fl.wg.Add(1)
	go fl.batchWriter()

	return fl, nil
}

func (fl *FileLogger) log(level LogLevel, msg string, component Component, source LogSource, fields map[string]interface{}) {
	entry := &LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Message:   msg,
		Component: component,
		Source:    source,
		Fields:    fields,
	}
	if id, ok := fields[FieldEventID].(string); ok {
		entry.EventID = id
	}
	if tt, ok := fields[FieldTaskType].(string); ok {
		entry.TaskType = tt
	}
	if err, ok := fields["error"]; ok {
		entry.Error = fmt.Sprintf("%v", err)
	}

	select {
	case fl.buffer <- entry:
	default:
		fl.dropped.Add(1)
	}
}

func (fl *FileLogger) batchWriter() {
	defer fl.wg.Done()

	ticker := time.NewTicker(fl.config.File.BatchInterval)
	defer ticker.Stop()

	for {
		select {
		case entry := <-fl.buffer:
			fl.batchBuf = append(fl.batchBuf, entry)
			if len(fl.batchBuf) >= fl.config.File.BatchSize {
				fl.flush()
			}
		case <-ticker.C:
			fl.flush()
		case <-fl.closeChan:
			fl.drainQueue()
			fl.flush()
			return
		}
	}
}

func (fl *FileLogger) drainQueue() {
	for {
		select {
		case entry := <-fl.buffer:
			fl.batchBuf = append(fl.batchBuf, entry)
		default:
			return
		}
	}
}

func (fl *FileLogger) flush() {
	if len(fl.batchBuf) == 0 {
		return
	}

	for _, entry := range fl.batchBuf {
		data, err := json.Marshal(entry)
		if err != nil {
			continue
		}
		_, _ = fl.logger.Write(append(data, '\n'))
	}
	fl.batchBuf = fl.batchBuf[:0]
}

// Dropped returns how many entries were discarded because the queue was full
func (fl *FileLogger) Dropped() int64 {
	return fl.dropped.Load()
}

// Close flushes queued entries and closes the file
func (fl *FileLogger) Close() error {
	fl.closeOnce.Do(func() { close(fl.closeChan) })
	fl.wg.Wait()

	if err := fl.logger.Close(); err != nil {
		return fmt.Errorf("failed to close file logger: %w", err)
	}
	return nil
}

// Rotate triggers manual log rotation
func (fl *FileLogger) Rotate() error {
	return fl.logger.Rotate()
}
