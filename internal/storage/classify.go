package storage

import (
	"encoding/base64"
	"path"
	"strings"

	"github.com/treenteq/harbor/internal/model"
)

// Classify maps a declared content type, with a filename-extension fallback
// taken from the locator, onto one of the closed set of payload kinds.
func Classify(contentType, locator string) model.PayloadKind {
	ct := contentType
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = ct[:i]
	}
	ct = strings.ToLower(strings.TrimSpace(ct))

	switch {
	case ct == "application/json" || strings.HasSuffix(ct, "+json"):
		return model.PayloadJSON
	case ct == "text/csv":
		return model.PayloadCSV
	case ct == "application/vnd.ms-excel",
		ct == "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		ct == "application/vnd.oasis.opendocument.spreadsheet":
		return model.PayloadSpreadsheet
	}

	switch strings.ToLower(path.Ext(locator)) {
	case ".json":
		return model.PayloadJSON
	case ".csv":
		return model.PayloadCSV
	case ".xls", ".xlsx", ".ods":
		return model.PayloadSpreadsheet
	}

	return model.PayloadBinary
}

// Normalize classifies raw payload bytes and encodes them for JSON
// transport. Text kinds carry the bytes verbatim; spreadsheet and binary
// kinds are base64-encoded so the round trip is lossless.
func Normalize(data []byte, contentType, locator string) *model.Payload {
	kind := Classify(contentType, locator)
	p := &model.Payload{
		Kind:        kind,
		ContentType: contentType,
	}
	switch kind {
	case model.PayloadJSON, model.PayloadCSV:
		p.Data = string(data)
	default:
		p.Encoding = "base64"
		p.Data = base64.StdEncoding.EncodeToString(data)
	}
	return p
}
