package storage

import (
	"io"
)

// Storage keeps append-only text files such as diagnostic logs.
type Storage interface {
	// AppendLine appends line plus a newline to name. When the file does
	// not exist yet it is created and header is written first.
	AppendLine(name, header, line string) error
	OpenFile(name string) (io.ReadSeekCloser, error)
}
