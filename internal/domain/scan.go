package domain

import (
	"fmt"
	"strings"
	"time"
)

// ScanType is the file format of an uploaded scan.
type ScanType string

const (
	ScanTypeJPEG  ScanType = "JPEG"
	ScanTypePNG   ScanType = "PNG"
	ScanTypePDF   ScanType = "PDF"
	ScanTypeOther ScanType = "OTHER"
)

// ScanTypeFromMIME maps a MIME type to a ScanType.
func ScanTypeFromMIME(mime string) ScanType {
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "image/jpeg", "image/jpg":
		return ScanTypeJPEG
	case "image/png":
		return ScanTypePNG
	case "application/pdf":
		return ScanTypePDF
	default:
		return ScanTypeOther
	}
}

// ScanStatus is the lifecycle state of a scan.
type ScanStatus string

const (
	ScanStatusUploading  ScanStatus = "uploading"
	ScanStatusReady      ScanStatus = "ready"
	ScanStatusFailed     ScanStatus = "failed"
	ScanStatusProcessing ScanStatus = "processing"
	ScanStatusArchived   ScanStatus = "archived"
)

// ParseScanStatus validates a status string.
func ParseScanStatus(s string) (ScanStatus, error) {
	switch st := ScanStatus(s); st {
	case ScanStatusUploading, ScanStatusReady, ScanStatusFailed, ScanStatusProcessing, ScanStatusArchived:
		return st, nil
	}
	return "", fmt.Errorf("unknown scan status %q", s)
}

// Scan metadata keys written when scans are attached to an invoice.
const (
	MetaUsedByInvoice    = "usedByInvoice"
	MetaInvoiceID        = "invoiceId"
	MetaInvoiceCreatedAt = "invoiceCreatedAt"
)

// Scan is a cached uploaded document awaiting or past invoice extraction.
type Scan struct {
	ID             string            `json:"id"`
	UserIdentifier string            `json:"userIdentifier"`
	Name           string            `json:"name"`
	BlobURL        string            `json:"blobUrl"`
	MimeType       string            `json:"mimeType"`
	SizeInBytes    int64             `json:"sizeInBytes"`
	ScanType       ScanType          `json:"scanType"`
	UploadedAt     time.Time         `json:"uploadedAt"`
	Status         ScanStatus        `json:"status"`
	Metadata       map[string]string `json:"metadata"`
	CachedAt       time.Time         `json:"cachedAt"`
}

// EntityID returns the scan id.
func (s Scan) EntityID() string { return s.ID }

// UsedByInvoice reports whether the scan was attached to an invoice.
func (s Scan) UsedByInvoice() bool {
	return s.Metadata[MetaUsedByInvoice] == "true"
}

// WithMetadata returns a copy of s with fields merged into its metadata.
// The receiver's map is not modified.
func (s Scan) WithMetadata(fields map[string]string) Scan {
	merged := make(map[string]string, len(s.Metadata)+len(fields))
	for k, v := range s.Metadata {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	s.Metadata = merged
	return s
}
