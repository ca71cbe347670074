package inventory

import (
	"fmt"
	"strings"

	"bitbucket.org/mmdatafocus/codepool/models"
	"bitbucket.org/mmdatafocus/codepool/utils"
)

const (
	tableSuffix = "_codes"
	// index names append at most this many characters to the table name
	indexSuffixLen = len("_uidx")
)

// TableName resolves the dynamic table of (generation id, level): lowercase(generationId) + level + "_codes".
// The result is validated so it can be safely quoted into DDL and DML.
func TableName(generationId string, level models.PackagingLevel) (string, error) {
	if err := utils.ValidateGenerationId(generationId); err != nil {
		return "", err
	}
	if !level.IsValid() {
		return "", fmt.Errorf("invalid packaging level %d", int(level))
	}
	name := strings.ToLower(generationId) + level.String() + tableSuffix
	if len(name)+indexSuffixLen > utils.MaxIdentifierLength {
		return "", fmt.Errorf("table name %q too long", name)
	}
	if err := utils.ValidateIdentifier(name); err != nil {
		return "", err
	}
	return name, nil
}
