// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-certauth.
//
// go-certauth is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package ca

import (
	"crypto/x509/pkix"
	"strings"
)

// dnOrder is the fixed attribute order for subject and issuer DNs.
// Building and parsing both use this exact order so that
// ParseSubjectDN(BuildSubjectDN(f)) round-trips.
var dnOrder = []string{"CN", "OU", "O", "L", "ST", "C"}

// BuildSubjectDN renders subject fields as a comma-separated DN string
// in CN, OU, O, L, ST, C order, omitting empty fields.
func BuildSubjectDN(fields SubjectFields) string {
	values := map[string]string{
		"CN": fields.CommonName,
		"OU": fields.OrganizationalUnit,
		"O":  fields.Organization,
		"L":  fields.Locality,
		"ST": fields.Province,
		"C":  fields.Country,
	}

	parts := make([]string, 0, len(dnOrder))
	for _, attr := range dnOrder {
		if v := values[attr]; v != "" {
			parts = append(parts, attr+"="+v)
		}
	}

	return strings.Join(parts, ", ")
}

// ParseSubjectDN parses a DN string produced by BuildSubjectDN back
// into subject fields. Unknown attributes are ignored.
func ParseSubjectDN(dn string) SubjectFields {
	var fields SubjectFields

	for _, part := range strings.Split(dn, ",") {
		part = strings.TrimSpace(part)
		attr, value, found := strings.Cut(part, "=")
		if !found {
			continue
		}

		switch strings.ToUpper(strings.TrimSpace(attr)) {
		case "CN":
			fields.CommonName = value
		case "OU":
			fields.OrganizationalUnit = value
		case "O":
			fields.Organization = value
		case "L":
			fields.Locality = value
		case "ST":
			fields.Province = value
		case "C":
			fields.Country = value
		}
	}

	return fields
}

// pkixName converts subject fields to a pkix.Name. The common name is
// expected to already be in portable form.
func pkixName(fields SubjectFields) pkix.Name {
	name := pkix.Name{CommonName: fields.CommonName}

	if fields.OrganizationalUnit != "" {
		name.OrganizationalUnit = []string{fields.OrganizationalUnit}
	}
	if fields.Organization != "" {
		name.Organization = []string{fields.Organization}
	}
	if fields.Locality != "" {
		name.Locality = []string{fields.Locality}
	}
	if fields.Province != "" {
		name.Province = []string{fields.Province}
	}
	if fields.Country != "" {
		name.Country = []string{fields.Country}
	}

	return name
}

// subjectFromName extracts subject fields from a pkix.Name, taking the
// first value of each multi-valued attribute.
func subjectFromName(name pkix.Name) SubjectFields {
	first := func(values []string) string {
		if len(values) > 0 {
			return values[0]
		}
		return ""
	}

	return SubjectFields{
		CommonName:         name.CommonName,
		OrganizationalUnit: first(name.OrganizationalUnit),
		Organization:       first(name.Organization),
		Locality:           first(name.Locality),
		Province:           first(name.Province),
		Country:            first(name.Country),
	}
}
