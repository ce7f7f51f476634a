package ldap

import (
	"strconv"
	"strings"
)

// userAccountControl flags.
const (
	UACScript                 = 0x0001
	UACAccountDisable         = 0x0002
	UACHomedirRequired        = 0x0008
	UACLockout                = 0x0010
	UACPasswdNotRequired      = 0x0020
	UACPasswdCantChange       = 0x0040
	UACNormalAccount          = 0x0200
	UACWorkstationTrust       = 0x1000
	UACServerTrust            = 0x2000
	UACDontExpirePassword     = 0x10000
	UACSmartcardRequired      = 0x40000
	UACTrustedForDelegation   = 0x80000
	UACPasswordExpired        = 0x800000
	UACMatchingRuleBitAnd     = "1.2.840.113556.1.4.803"
	DefaultUserAccountControl = UACNormalAccount | UACAccountDisable | UACDontExpirePassword // 66050
	DefaultComputerAccountCtl = UACWorkstationTrust | UACPasswdNotRequired                   // 4128
)

// ParseUAC parses a userAccountControl attribute value. Empty input yields 0.
func ParseUAC(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	return strconv.ParseInt(value, 10, 64)
}

// SetUACFlag returns uac with flag set or cleared.
func SetUACFlag(uac, flag int64, set bool) int64 {
	if set {
		return uac | flag
	}
	return uac &^ flag
}

// UACFlagFilter builds a bitwise-AND matching rule filter for a userAccountControl flag.
func UACFlagFilter(flag int64) string {
	return "(userAccountControl:" + UACMatchingRuleBitAnd + ":=" + strconv.FormatInt(flag, 10) + ")"
}
