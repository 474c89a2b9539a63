// Package samples holds the built-in control catalog used by the
// quick-attest flow and the demo endpoints.
package samples

import "strings"

type Control struct {
	ControlID     string `json:"control_id"`
	Framework     string `json:"framework"`
	Title         string `json:"title"`
	Statement     string `json:"statement"`
	EvidenceCount int    `json:"evidence_count"`
	Description   string `json:"description"`
}

var catalog = []Control{
	{
		ControlID:     "AC-2",
		Framework:     "NIST 800-53",
		Title:         "Account Management",
		Statement:     "The organization manages information system accounts, including establishing, activating, modifying, reviewing, disabling, and removing accounts. The organization reviews information system accounts at least annually.",
		EvidenceCount: 5,
		Description:   "Account management controls ensure proper user access lifecycle management",
	},
	{
		ControlID:     "AC-3",
		Framework:     "NIST 800-53",
		Title:         "Access Enforcement",
		Statement:     "The information system enforces approved authorizations for logical access to information and system resources in accordance with applicable access control policies.",
		EvidenceCount: 4,
		Description:   "Access enforcement ensures only authorized users can access resources",
	},
	{
		ControlID:     "AU-2",
		Framework:     "NIST 800-53",
		Title:         "Audit Events",
		Statement:     "The organization determines that the information system is capable of auditing defined events and coordinates the audit function with other organizational entities requiring audit-related information.",
		EvidenceCount: 4,
		Description:   "Audit event coverage underpins accountability and incident reconstruction",
	},
	{
		ControlID:     "CP-9",
		Framework:     "NIST 800-53",
		Title:         "Information System Backup",
		Statement:     "The organization conducts backups of user-level and system-level information contained in the information system and protects the confidentiality, integrity, and availability of backup information at storage locations.",
		EvidenceCount: 3,
		Description:   "Backup integrity protects recoverability of organizational data",
	},
	{
		ControlID:     "CC6.1",
		Framework:     "SOC 2",
		Title:         "Logical and Physical Access Controls",
		Statement:     "The entity implements logical access security software, infrastructure, and architectures over protected information assets to protect them from security events to meet the entity's objectives.",
		EvidenceCount: 4,
		Description:   "Logical access controls protect systems from unauthorized access",
	},
	{
		ControlID:     "CC7.2",
		Framework:     "SOC 2",
		Title:         "System Monitoring",
		Statement:     "The entity monitors system components and the operation of those components for anomalies that are indicative of malicious acts, natural disasters, and errors affecting the entity's ability to meet its objectives.",
		EvidenceCount: 3,
		Description:   "Continuous monitoring detects anomalies before they become incidents",
	},
	{
		ControlID:     "A.5.15",
		Framework:     "ISO 27001",
		Title:         "Access Control",
		Statement:     "Rules for the effective control of access to information and associated assets, including authorization process, access rights, and access control to networks and networked services shall be established, documented and reviewed.",
		EvidenceCount: 3,
		Description:   "Access control policy ensures proper authorization and authentication",
	},
	{
		ControlID:     "A.8.13",
		Framework:     "ISO 27001",
		Title:         "Information Backup",
		Statement:     "Backup copies of information, software and systems shall be maintained and regularly tested in accordance with the agreed topic-specific policy on backup.",
		EvidenceCount: 3,
		Description:   "Tested backups keep restore objectives honest",
	},
}

func All() []Control {
	return append([]Control(nil), catalog...)
}

func ByID(controlID string) (Control, bool) {
	for _, c := range catalog {
		if strings.EqualFold(c.ControlID, controlID) {
			return c, true
		}
	}
	return Control{}, false
}

func ByFramework(framework string) []Control {
	var out []Control
	for _, c := range catalog {
		if strings.EqualFold(c.Framework, framework) {
			out = append(out, c)
		}
	}
	return out
}

func Frameworks() []string {
	seen := map[string]bool{}
	var out []string
	for _, c := range catalog {
		if !seen[c.Framework] {
			seen[c.Framework] = true
			out = append(out, c.Framework)
		}
	}
	return out
}

// Search matches the query against id, title, and statement.
func Search(query string) []Control {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	var out []Control
	for _, c := range catalog {
		if strings.Contains(strings.ToLower(c.ControlID), q) ||
			strings.Contains(strings.ToLower(c.Title), q) ||
			strings.Contains(strings.ToLower(c.Statement), q) {
			out = append(out, c)
		}
	}
	return out
}
