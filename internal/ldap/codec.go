package ldap

import (
	"encoding/binary"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/bwmarrin/go-objectsid"
	"github.com/go-ldap/ldap/v3"
	"github.com/google/uuid"
	"golang.org/x/text/encoding/unicode"
)

// ParseGUID parses hyphenated, braced or compact GUID text.
func ParseGUID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid GUID format %q: %w", s, err)
	}
	return id, nil
}

// IsGUID reports whether s is GUID text.
func IsGUID(s string) bool {
	_, err := ParseGUID(s)
	return err == nil
}

// GUIDToBytes converts a GUID to the mixed-endian layout stored in objectGUID.
// Data1, Data2 and Data3 are little-endian, Data4 is kept as-is.
func GUIDToBytes(id uuid.UUID) []byte {
	b := make([]byte, 16)
	binary.LittleEndian.PutUint32(b[0:4], binary.BigEndian.Uint32(id[0:4]))
	binary.LittleEndian.PutUint16(b[4:6], binary.BigEndian.Uint16(id[4:6]))
	binary.LittleEndian.PutUint16(b[6:8], binary.BigEndian.Uint16(id[6:8]))
	copy(b[8:], id[8:])
	return b
}

// GUIDFromBytes decodes a raw objectGUID value.
func GUIDFromBytes(raw []byte) (uuid.UUID, error) {
	if len(raw) != 16 {
		return uuid.Nil, fmt.Errorf("invalid GUID byte length: expected 16, got %d", len(raw))
	}
	var id uuid.UUID
	binary.BigEndian.PutUint32(id[0:4], binary.LittleEndian.Uint32(raw[0:4]))
	binary.BigEndian.PutUint16(id[4:6], binary.LittleEndian.Uint16(raw[4:6]))
	binary.BigEndian.PutUint16(id[6:8], binary.LittleEndian.Uint16(raw[6:8]))
	copy(id[8:], raw[8:])
	return id, nil
}

// GUIDSearchFilter builds an objectGUID equality filter for GUID text.
func GUIDSearchFilter(s string) (string, error) {
	id, err := ParseGUID(s)
	if err != nil {
		return "", err
	}
	return "(objectGUID=" + ldap.EscapeFilter(string(GUIDToBytes(id))) + ")", nil
}

// EntryGUID returns the entry's objectGUID as text, or "" when absent.
func EntryGUID(entry *ldap.Entry) string {
	if entry == nil {
		return ""
	}
	id, err := GUIDFromBytes(entry.GetRawAttributeValue("objectGUID"))
	if err != nil {
		return ""
	}
	return id.String()
}

// IsSID reports whether s looks like S-1-... text.
func IsSID(s string) bool {
	if !strings.HasPrefix(strings.ToUpper(s), "S-1-") {
		return false
	}
	for _, part := range strings.Split(s[4:], "-") {
		if part == "" {
			return false
		}
		for _, r := range part {
			if r < '0' || r > '9' {
				return false
			}
		}
	}
	return true
}

// EntrySID returns the entry's objectSid as S-1-... text, or "" when absent.
// String-valued SIDs are accepted as-is.
func EntrySID(entry *ldap.Entry) string {
	if entry == nil {
		return ""
	}
	raw := entry.GetRawAttributeValue("objectSid")
	if len(raw) == 0 {
		return ""
	}
	if IsSID(string(raw)) {
		return string(raw)
	}
	if len(raw) < 8 {
		return ""
	}
	return objectsid.Decode(raw).String()
}

// SIDSearchFilter builds an objectSid equality filter. AD accepts the string form directly.
func SIDSearchFilter(sid string) (string, error) {
	if !IsSID(sid) {
		return "", fmt.Errorf("invalid SID format %q", sid)
	}
	return "(objectSid=" + ldap.EscapeFilter(strings.ToUpper(sid)) + ")", nil
}

// EncodePassword renders a cleartext password as the quoted UTF-16LE value unicodePwd requires.
func EncodePassword(password string) (string, error) {
	encoder := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()
	encoded, err := encoder.String(`"` + password + `"`)
	if err != nil {
		return "", fmt.Errorf("failed to encode password: %w", err)
	}
	return encoded, nil
}

// Int2IP converts the signed 32-bit integer form of msRADIUSFramedIPAddress to dotted-quad text.
func Int2IP(n int64) string {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(n))
	return net.IP(b).String()
}

// IP2Int converts an IPv4 address to the signed 32-bit form AD stores.
func IP2Int(s string) (int32, error) {
	ip := net.ParseIP(strings.TrimSpace(s)).To4()
	if ip == nil {
		return 0, fmt.Errorf("invalid IPv4 address %q", s)
	}
	return int32(binary.BigEndian.Uint32(ip)), nil
}

// fileTimeEpochDelta is the number of 100ns intervals between 1601-01-01 and 1970-01-01.
const fileTimeEpochDelta = 116444736000000000

// neverExpires are the accountExpires values meaning "no expiry".
const neverExpires = int64(0x7FFFFFFFFFFFFFFF)

// FileTimeToTime converts a Windows FILETIME to time.Time. Zero and never-expires map to the zero time.
func FileTimeToTime(ft int64) time.Time {
	if ft <= 0 || ft == neverExpires {
		return time.Time{}
	}
	return time.Unix(0, (ft-fileTimeEpochDelta)*100).UTC()
}

// TimeToFileTime converts a time to a Windows FILETIME.
func TimeToFileTime(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()/100 + fileTimeEpochDelta
}
