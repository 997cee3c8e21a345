package pipeline

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/couchcryptid/wildfire-risk-service/internal/domain"
	"github.com/couchcryptid/wildfire-risk-service/internal/preprocess"
)

// WriteMatrix writes the design matrix as CSV: the preprocessor's feature
// columns followed by the RISK_LEVEL label and the log1p FIRE_SIZE target.
func WriteMatrix(w io.Writer, pre *preprocess.Preprocessor, records []domain.FeatureRecord) error {
	cw := csv.NewWriter(w)

	header := append(pre.FeatureNames(), domain.ColRiskLevel, domain.ColFireSize)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write matrix header: %w", err)
	}

	row := make([]string, len(header))
	for i, rec := range records {
		vec, err := pre.Transform(rec)
		if err != nil {
			return fmt.Errorf("transform record %d: %w", i, err)
		}
		for j, v := range vec {
			row[j] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		row[len(vec)] = rec.RiskLevel
		row[len(vec)+1] = strconv.FormatFloat(rec.FireSize, 'g', -1, 64)
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write matrix row %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}
