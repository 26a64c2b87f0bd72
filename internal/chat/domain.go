package chat

import (
	"fmt"
	"strings"
)

// Domain is a top-level knowledge context a user can focus the console on.
type Domain struct {
	Name       string   `json:"name"`
	SubDomains []string `json:"subDomains"`
	Tools      []Tool   `json:"tools"`
}

// Tool is an analysis toolkit that can be toggled inside a domain.
type Tool struct {
	Name string `json:"name"`
	Desc string `json:"desc"`
}

// Catalog lists the domains, disciplines and toolkits offered by the console.
var Catalog = []Domain{
	{
		Name:       "Software Development",
		SubDomains: []string{"Backend Systems", "Frontend & UX", "DevOps & SRE", "Mobile", "Security Engineering"},
		Tools: []Tool{
			{Name: "Code Sandbox", Desc: "Run snippets in an isolated interpreter"},
			{Name: "Static Analyzer", Desc: "Lint and flag risky constructs"},
			{Name: "Test Generator", Desc: "Derive unit and integration tests"},
		},
	},
	{
		Name:       "CS Theory",
		SubDomains: []string{"Algorithms", "Complexity", "Formal Methods", "Distributed Systems"},
		Tools: []Tool{
			{Name: "Complexity Profiler", Desc: "Estimate asymptotic cost"},
			{Name: "Proof Assistant", Desc: "Check invariants step by step"},
		},
	},
	{
		Name:       "Engineering",
		SubDomains: []string{"Aerodynamics", "Mechanical", "Electrical", "Control Systems"},
		Tools: []Tool{
			{Name: "CFD Simulator", Desc: "Approximate flow simulations"},
			{Name: "Unit Converter", Desc: "Dimensional analysis"},
		},
	},
	{
		Name:       "Medical & Health",
		SubDomains: []string{"Clinical Research", "Pharmacology", "Public Health"},
		Tools: []Tool{
			{Name: "Citation Templates", Desc: "Format references for clinical sources"},
			{Name: "Guideline Lookup", Desc: "Surface published care guidelines"},
		},
	},
	{
		Name:       "General/Creative",
		SubDomains: []string{"Writing", "Research Synthesis", "Workflows"},
		Tools: []Tool{
			{Name: "Outline Builder", Desc: "Turn notes into structured outlines"},
		},
	},
}

// LookupDomain finds a catalog domain by case-insensitive name.
func LookupDomain(name string) (Domain, bool) {
	for _, d := range Catalog {
		if strings.EqualFold(d.Name, name) {
			return d, true
		}
	}
	return Domain{}, false
}

// ValidateSelection checks that subDomain and tool belong to the domain.
// Empty values are always valid.
func ValidateSelection(domain, subDomain, tool string) error {
	if domain == "" {
		if subDomain != "" || tool != "" {
			return fmt.Errorf("chat: select a domain first")
		}
		return nil
	}
	d, ok := LookupDomain(domain)
	if !ok {
		return fmt.Errorf("chat: unknown domain %q", domain)
	}
	if subDomain != "" && !containsFold(d.SubDomains, subDomain) {
		return fmt.Errorf("chat: %q is not a discipline of %s", subDomain, d.Name)
	}
	if tool != "" {
		found := false
		for _, t := range d.Tools {
			if strings.EqualFold(t.Name, tool) {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("chat: %q is not a toolkit of %s", tool, d.Name)
		}
	}
	return nil
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
