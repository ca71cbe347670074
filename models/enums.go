package models

import (
	"fmt"
	"strconv"
	"strings"
)

// PackagingLevel is the tier in the packaging hierarchy a code is printed for.
type PackagingLevel int

const (
	PackagingLevelUnit        PackagingLevel = 0
	PackagingLevelFirstLayer  PackagingLevel = 1
	PackagingLevelSecondLayer PackagingLevel = 2
	PackagingLevelThirdLayer  PackagingLevel = 3
	// PackagingLevelPallet codes are SSCCs and live in sscc_codes, never in a dynamic table.
	PackagingLevelPallet PackagingLevel = 5
)

// AllPackagingLevels in reconciliation order.
var AllPackagingLevels = []PackagingLevel{
	PackagingLevelUnit, PackagingLevelFirstLayer, PackagingLevelSecondLayer, PackagingLevelThirdLayer, PackagingLevelPallet,
}

// LayerPackagingLevels are the levels backed by dynamic code tables.
var LayerPackagingLevels = []PackagingLevel{
	PackagingLevelUnit, PackagingLevelFirstLayer, PackagingLevelSecondLayer, PackagingLevelThirdLayer,
}

func (l PackagingLevel) IsValid() bool {
	switch l {
	case PackagingLevelUnit, PackagingLevelFirstLayer, PackagingLevelSecondLayer, PackagingLevelThirdLayer, PackagingLevelPallet:
		return true
	}
	return false
}

func (l PackagingLevel) IsPallet() bool {
	return l == PackagingLevelPallet
}

// Hierarchy is the packaging_hierarchy value stored on request rows, e.g. "level1".
func (l PackagingLevel) Hierarchy() string {
	return "level" + strconv.Itoa(int(l))
}

func (l PackagingLevel) String() string {
	return strconv.Itoa(int(l))
}

func ParsePackagingLevel(s string) (PackagingLevel, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "level")
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid packaging level %q", s)
	}
	l := PackagingLevel(n)
	if !l.IsValid() {
		return 0, fmt.Errorf("invalid packaging level %d", n)
	}
	return l, nil
}

type RequestStatus string

const (
	RequestStatusRequested  RequestStatus = "requested"
	RequestStatusProcessing RequestStatus = "processing"
	RequestStatusCompleted  RequestStatus = "completed"
	RequestStatusFailed     RequestStatus = "failed"
)
