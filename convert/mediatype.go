// Copyright 2025 Quillworks Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package convert

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Canonical media types accepted by the conversion service.
const (
	TypePDF      = "application/pdf"
	TypeDOC      = "application/msword"
	TypeDOCX     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	TypeXLS      = "application/vnd.ms-excel"
	TypeXLSX     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	TypePPT      = "application/vnd.ms-powerpoint"
	TypePPTX     = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	TypeHTML     = "text/html"
	TypeMarkdown = "text/markdown"
	TypePlain    = "text/plain"
	TypePNG      = "image/png"
	TypeJPEG     = "image/jpeg"
	TypeTIFF     = "image/tiff"
)

// extensionTypes resolves formats content sniffing cannot tell apart.
// Markdown and friends all sniff as plain text.
var extensionTypes = map[string]string{
	".pdf":  TypePDF,
	".doc":  TypeDOC,
	".docx": TypeDOCX,
	".xls":  TypeXLS,
	".xlsx": TypeXLSX,
	".ppt":  TypePPT,
	".pptx": TypePPTX,
	".html": TypeHTML,
	".htm":  TypeHTML,
	".md":   TypeMarkdown,
	".txt":  TypePlain,
	".png":  TypePNG,
	".jpg":  TypeJPEG,
	".jpeg": TypeJPEG,
	".tiff": TypeTIFF,
	".tif":  TypeTIFF,
}

// DefaultAllowedTypes returns the media types convertible out of the box.
func DefaultAllowedTypes() []string {
	return []string{
		TypePDF,
		TypeDOC,
		TypeDOCX,
		TypeXLS,
		TypeXLSX,
		TypePPT,
		TypePPTX,
		TypeHTML,
		TypeMarkdown,
		TypePlain,
		TypePNG,
		TypeJPEG,
		TypeTIFF,
	}
}

// genericTypes are sniff results too unspecific to pick a conversion
// format. Markdown sniffs as plain text, office formats without their
// marker entries sniff as bare zip.
var genericTypes = []string{
	TypePlain,
	"application/octet-stream",
	"application/zip",
	"inode/x-empty",
}

// DetectMediaType determines the media type of uploaded content. It sniffs
// the bytes first and consults the filename extension when sniffing comes
// back with something too generic to pick a conversion format.
func DetectMediaType(filename string, content []byte) string {
	mtype := mimetype.Detect(content)

	if byExt, ok := extensionTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		if mtype.Is(byExt) {
			return byExt
		}
		for _, generic := range genericTypes {
			if mtype.Is(generic) {
				return byExt
			}
		}
	}

	detected := mtype.String()
	if parsed, _, err := mime.ParseMediaType(detected); err == nil {
		return parsed
	}
	return detected
}
