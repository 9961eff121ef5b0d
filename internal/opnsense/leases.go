package opnsense

import (
	"encoding/json"
	"strings"

	"github.com/bcnelson/opnsense-access-control/internal/domain"
)

// ParseLeases reads the rows of a DHCPv4 searchLease response.
func ParseLeases(raw []byte) ([]domain.Lease, error) {
	var resp struct {
		Rows []map[string]json.RawMessage `json:"rows"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &domain.ParseError{Reason: "lease listing", Err: err}
	}

	leases := make([]domain.Lease, 0, len(resp.Rows))
	for _, row := range resp.Rows {
		mac := scalar(row["mac"])
		if mac == "" {
			mac = scalar(row["hwaddr"])
		}
		leases = append(leases, domain.Lease{
			Hostname: strings.TrimSpace(scalar(row["hostname"])),
			MAC:      strings.TrimSpace(mac),
			Address:  strings.TrimSpace(scalar(row["address"])),
		})
	}
	return leases, nil
}
