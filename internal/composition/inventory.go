package composition

import (
	"encoding/json"
	"fmt"

	"arpgen/internal/services"
)

// Inventory is the nuclide inventory interface (ii.json) structure produced
// by the external tool for one extracted case.
type Inventory struct {
	Responses   map[string]CaseResponse `json:"responses"`
	Data        InventoryData           `json:"data"`
	Definitions Definitions             `json:"definitions"`
}

// CaseResponse holds one case's inventory snapshot.
type CaseResponse struct {
	Volume            float64     `json:"volume"`
	Amount            [][]float64 `json:"amount"`
	NuclideVectorHash string      `json:"nuclideVectorHash"`
}

// InventoryData carries the per-nuclide reference data.
type InventoryData struct {
	Nuclides map[string]Nuclide `json:"nuclides"`
}

// Nuclide describes one nuclide's identity and molar mass.
type Nuclide struct {
	Mass          float64 `json:"mass"`
	AtomicNumber  int     `json:"atomicNumber"`
	Element       string  `json:"element"`
	IsomericState int     `json:"isomericState"`
	MassNumber    int     `json:"massNumber"`
}

// Definitions resolves nuclide vector hashes to ordered nuclide name lists.
type Definitions struct {
	NuclideVectors map[string][]string `json:"nuclideVectors"`
}

// ParseInventory decodes inventory interface JSON.
func ParseInventory(text []byte) (*Inventory, error) {
	var inv Inventory
	if err := json.Unmarshal(text, &inv); err != nil {
		return nil, fmt.Errorf("parse inventory interface data: %w", err)
	}
	return &inv, nil
}

// RewriteSystemCase renames the response under caseKey to the well-known
// "system" key and re-renders the document with 4-space indentation, leaving
// every other field intact. The result is what gets persisted next to the
// canonical library.
func RewriteSystemCase(text []byte, caseKey string) ([]byte, error) {
	var doc map[string]any
	if err := json.Unmarshal(text, &doc); err != nil {
		return nil, fmt.Errorf("parse inventory interface data: %w", err)
	}

	responses, ok := doc["responses"].(map[string]any)
	if !ok {
		return nil, services.Wrap(services.ErrConsistency, "", "",
			"inventory interface data has no responses object", nil)
	}
	response, ok := responses[caseKey]
	if !ok {
		return nil, services.Wrap(services.ErrConsistency, "", "",
			fmt.Sprintf("inventory interface data has no %q response", caseKey), nil)
	}
	delete(responses, caseKey)
	responses["system"] = response

	out, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("encode inventory interface data: %w", err)
	}
	out = append(out, '\n')
	return out, nil
}
