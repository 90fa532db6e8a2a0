package model

import "strconv"

// FirstVersionID is assigned to the first version of a resource
const FirstVersionID = "0"

// LatestVersionID returns the version-id with the largest numeric value.
// Ids that are not integers rank below every numeric id and are compared
// lexically among themselves.
func LatestVersionID(versions map[string]*ResourceVersion) (string, bool) {
	var (
		latest  string
		latestN int64
		numeric bool
		found   bool
	)
	for id := range versions {
		n, err := strconv.ParseInt(id, 10, 64)
		isNum := err == nil
		switch {
		case !found:
		case isNum && !numeric:
		case isNum && numeric && n > latestN:
		case !isNum && !numeric && id > latest:
		default:
			continue
		}
		latest, latestN, numeric, found = id, n, isNum, true
	}
	return latest, found
}

// NextVersionID returns max(numeric ids)+1, or FirstVersionID when
// there are no numeric ids yet.
func NextVersionID(versions map[string]*ResourceVersion) string {
	highest := int64(-1)
	for id := range versions {
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			continue
		}
		if n > highest {
			highest = n
		}
	}
	if highest < 0 {
		return FirstVersionID
	}
	return strconv.FormatInt(highest+1, 10)
}
