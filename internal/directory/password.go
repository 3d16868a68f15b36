// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Resetgate Contributors

package directory

import (
	"github.com/samber/oops"
	"golang.org/x/text/encoding/unicode"
)

// encodePassword prepares a plaintext password for the unicodePwd
// attribute: the directory requires the password wrapped in literal
// quote characters and encoded as UTF-16 little-endian. This framing is
// mandatory for the modify to be accepted.
func encodePassword(password string) ([]byte, error) {
	quoted := `"` + password + `"`
	encoder := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()
	encoded, err := encoder.String(quoted)
	if err != nil {
		return nil, oops.Code("PASSWORD_ENCODE_FAILED").Wrap(err)
	}
	return []byte(encoded), nil
}
