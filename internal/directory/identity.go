// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Resetgate Contributors

// Package directory adapts LDAP lookup and password-modification
// operations for the reset workflow.
package directory

import "strings"

// Identity is a read-only snapshot of a directory account, fetched fresh
// per lookup and never cached beyond a single workflow.
type Identity struct {
	DN              string
	PrincipalName   string
	Name            string
	Mail            string
	TelephoneNumber string
}

// attributes requested from the directory for each identity.
var userAttributes = []string{
	"distinguishedName",
	"userPrincipalName",
	"name",
	"mail",
	"telephoneNumber",
}

// BaseDN converts a DNS domain into its directory base, e.g.
// "example.com" becomes "DC=example,DC=com".
func BaseDN(domain string) string {
	parts := strings.Split(domain, ".")
	components := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		components = append(components, "DC="+part)
	}
	return strings.Join(components, ",")
}
