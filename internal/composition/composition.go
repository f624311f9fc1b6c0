package composition

import (
	"fmt"
	"strconv"
	"strings"

	"arpgen/internal/services"
)

const o2Mass = 2 * 15.9994

// OxideGroup is one heavy-metal oxide constituent: the isotopic vector in
// wt% of the group and the group's density fraction of the heavy metal.
type OxideGroup struct {
	Iso      map[string]float64 `json:"iso"`
	DensFrac float64            `json:"dens_frac"`
}

// Info carries derived molar masses and heavy-metal fractions.
type Info struct {
	O2Mass     float64            `json:"o2_mass"`
	HMIso      map[string]float64 `json:"hm_iso"`
	UMass      float64            `json:"u_mass"`
	AmMass     float64            `json:"am_mass"`
	PuMass     float64            `json:"pu_mass"`
	HMMass     float64            `json:"hm_mass"`
	HMNorm     float64            `json:"hm_norm"`
	PuO2HMFrac float64            `json:"puo2_hm_frac"`
	AmO2HMFrac float64            `json:"amo2_hm_frac"`
	UO2HMFrac  float64            `json:"uo2_hm_frac"`
}

// Breakdown is the heavy-metal oxide summary of one inventory snapshot.
type Breakdown struct {
	UO2     OxideGroup `json:"uo2"`
	PuO2    OxideGroup `json:"puo2"`
	AmO2    OxideGroup `json:"amo2"`
	Info    Info       `json:"info"`
	Density float64    `json:"density"`
}

// Summarize reduces the "system" case of an inventory snapshot to its
// heavy-metal oxide breakdown. Total mass accumulates over every nuclide;
// the oxide groups cover nuclides with atomic number >= 92.
func Summarize(inv *Inventory) (*Breakdown, error) {
	response, ok := inv.Responses["system"]
	if !ok {
		return nil, services.Wrap(services.ErrConsistency, "", "",
			"inventory has no system response", nil)
	}
	if response.Volume <= 0 {
		return nil, services.Wrap(services.ErrConsistency, "", "",
			fmt.Sprintf("system response volume %g must be positive", response.Volume), nil)
	}
	nuclides, ok := inv.Definitions.NuclideVectors[response.NuclideVectorHash]
	if !ok {
		return nil, services.Wrap(services.ErrConsistency, "", "",
			fmt.Sprintf("nuclide vector %q is not defined", response.NuclideVectorHash), nil)
	}
	if len(response.Amount) == 0 || len(response.Amount[0]) != len(nuclides) {
		return nil, services.Wrap(services.ErrConsistency, "", "",
			"amount vector does not match the nuclide vector", nil)
	}
	amounts := response.Amount[0]

	totalMass := 0.0
	hm := make(map[string]float64)
	for i, name := range nuclides {
		data, ok := inv.Data.Nuclides[name]
		if !ok {
			return nil, services.Wrap(services.ErrConsistency, "", "",
				fmt.Sprintf("nuclide %q has no reference data", name), nil)
		}
		mass := amounts[i] * data.Mass
		totalMass += mass
		if data.AtomicNumber >= 92 {
			suffix := ""
			if data.IsomericState >= 1 {
				suffix = "m"
			}
			eam := fmt.Sprintf("%s%d%s", strings.ToLower(data.Element), data.MassNumber, suffix)
			hm[eam] = mass
		}
	}
	if len(hm) == 0 {
		return nil, services.Wrap(services.ErrConsistency, "", "",
			"inventory contains no heavy metal nuclides", nil)
	}

	breakdown := hmOxideBreakdown(hm)
	breakdown.Info = approximateHMInfo(breakdown)
	breakdown.Density = totalMass / response.Volume
	return breakdown, nil
}

// hmOxideBreakdown splits a heavy-metal mass map into per-element oxide
// groups. The full vector is first renormalized to 100 wt%; each element
// group is renormalized again, its norm becoming the group density fraction.
func hmOxideBreakdown(masses map[string]float64) *Breakdown {
	hmIso, _ := renormalizeWtpt(masses, 100.0, "")
	uIso, uNorm := renormalizeWtpt(hmIso, 100.0, "u")
	puIso, puNorm := renormalizeWtpt(hmIso, 100.0, "pu")
	amIso, amNorm := renormalizeWtpt(hmIso, 100.0, "am")
	return &Breakdown{
		UO2:  OxideGroup{Iso: uIso, DensFrac: uNorm},
		PuO2: OxideGroup{Iso: puIso, DensFrac: puNorm},
		AmO2: OxideGroup{Iso: amIso, DensFrac: amNorm},
	}
}

func approximateHMInfo(b *Breakdown) Info {
	combined := make(map[string]float64)
	for _, group := range []OxideGroup{b.UO2, b.PuO2, b.AmO2} {
		for iso, wt := range group.Iso {
			combined[iso] = wt * group.DensFrac
		}
	}
	hmIso, hmNorm := renormalizeWtpt(combined, 100.0, "")

	uMass := gramsPerMol(b.UO2.Iso)
	puMass := gramsPerMol(b.PuO2.Iso)
	amMass := gramsPerMol(b.AmO2.Iso)
	return Info{
		O2Mass:     o2Mass,
		HMIso:      hmIso,
		UMass:      uMass,
		AmMass:     amMass,
		PuMass:     puMass,
		HMMass:     gramsPerMol(hmIso),
		HMNorm:     hmNorm,
		PuO2HMFrac: puMass / (puMass + o2Mass),
		AmO2HMFrac: amMass / (amMass + o2Mass),
		UO2HMFrac:  uMass / (uMass + o2Mass),
	}
}

// renormalizeWtpt filters keys by prefix and rescales the retained values to
// sum to sum0, returning the rescaled map and the applied norm (filtered sum
// divided by sum0). An empty filtered set yields an empty map and norm 0.
func renormalizeWtpt(wtpt0 map[string]float64, sum0 float64, prefix string) (map[string]float64, float64) {
	wtpt := make(map[string]float64)
	sum := 0.0
	for key, value := range wtpt0 {
		if strings.HasPrefix(key, prefix) {
			sum += value
			wtpt[key] = value
		}
	}
	if sum == 0 {
		return wtpt, 0
	}
	norm := sum / sum0
	for key := range wtpt {
		wtpt[key] /= norm
	}
	return wtpt, norm
}

var molarMassOverrides = map[string]float64{"am241": 241.0568}

// gramsPerMol computes the molar mass of a wt% isotopic vector. Isotope
// masses default to the numeric mass number embedded in the key; overrides
// carry more precise values. An empty vector yields 0.
func gramsPerMol(isoWts map[string]float64) float64 {
	molsPerGram := 0.0
	for iso, wt := range isoWts {
		mass, ok := molarMassOverrides[iso]
		if !ok {
			mass, ok = massFromKey(iso)
			if !ok {
				continue
			}
		}
		molsPerGram += (wt / 100.0) / mass
	}
	if molsPerGram == 0 {
		return 0
	}
	return 1.0 / molsPerGram
}

// massFromKey extracts the leading digits of the key's numeric tail, so
// isomer keys like "am242m" resolve to 242.
func massFromKey(iso string) (float64, bool) {
	rest := strings.TrimLeft(iso, "abcdefghijklmnopqrstuvwxyz")
	end := len(rest)
	for i, r := range rest {
		if r < '0' && r != '.' || r > '9' {
			end = i
			break
		}
	}
	value, err := strconv.ParseFloat(rest[:end], 64)
	if err != nil {
		return 0, false
	}
	return value, true
}
