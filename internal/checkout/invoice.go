package checkout

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// InvoiceSink stores a downloaded invoice and returns where it went.
type InvoiceSink interface {
	Save(ctx context.Context, name string, pdf []byte) (string, error)
}

// FileSink writes invoices into a directory.
type FileSink struct {
	dir string
}

func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create invoice directory: %w", err)
	}
	return &FileSink{dir: dir}, nil
}

func (s *FileSink) Save(_ context.Context, name string, pdf []byte) (string, error) {
	path := filepath.Join(s.dir, filepath.Base(name))
	tmp, err := os.CreateTemp(s.dir, ".invoice-*")
	if err != nil {
		return "", fmt.Errorf("failed to create invoice file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(pdf); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write invoice: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write invoice: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to store invoice: %w", err)
	}
	return path, nil
}

// InvoiceFileName is the name under which an invoice PDF is saved.
func InvoiceFileName(invoiceID int64) string {
	return fmt.Sprintf("factura_%d.pdf", invoiceID)
}
