package clipboard_atotto

import (
	"errors"

	"github.com/atotto/clipboard"
)

var ErrUnsupported = errors.New("no clipboard available")

type Clipboard struct {
	write func(string) error
}

func New() *Clipboard { return &Clipboard{write: clipboard.WriteAll} }

func (c *Clipboard) Copy(text string) error {
	if clipboard.Unsupported {
		return ErrUnsupported
	}
	return c.write(text)
}
