package export

import (
	"strings"
	"time"

	"github.com/gosimple/slug"
)

// Filename builds a download name such as "payouts-march-close-20261014-120000.xlsx".
func Filename(prefix, label string, at time.Time, ext string) string {
	base := strings.TrimSpace(prefix + " " + label)
	name := slug.Make(base)
	if name == "" {
		name = "export"
	}
	return name + "-" + at.UTC().Format("20060102-150405") + "." + strings.TrimPrefix(ext, ".")
}
