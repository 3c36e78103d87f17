package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const siweHeaderSuffix = " wants you to sign in with your Ethereum account:"

// SIWEMessage is a parsed EIP-4361 sign-in message
type SIWEMessage struct {
	Domain         string
	Address        string
	Statement      string
	URI            string
	Version        string
	ChainID        int64
	Nonce          string
	IssuedAt       time.Time
	ExpirationTime *time.Time
	NotBefore      *time.Time
	RequestID      string
	Resources      []string
}

var errMalformedSIWE = errors.New("malformed sign-in message")

// ParseSIWEMessage parses the plain-text EIP-4361 format
func ParseSIWEMessage(message string) (*SIWEMessage, error) {
	lines := strings.Split(strings.ReplaceAll(message, "\r\n", "\n"), "\n")
	if len(lines) < 2 || !strings.HasSuffix(lines[0], siweHeaderSuffix) {
		return nil, fmt.Errorf("%w: missing header", errMalformedSIWE)
	}

	m := &SIWEMessage{
		Domain:  strings.TrimSuffix(lines[0], siweHeaderSuffix),
		Address: strings.TrimSpace(lines[1]),
	}
	if m.Domain == "" {
		return nil, fmt.Errorf("%w: empty domain", errMalformedSIWE)
	}

	var statement []string
	inResources := false
	for _, line := range lines[2:] {
		if inResources {
			if strings.HasPrefix(line, "- ") {
				m.Resources = append(m.Resources, strings.TrimPrefix(line, "- "))
				continue
			}
			inResources = false
		}

		key, value, ok := strings.Cut(line, ": ")
		if !ok {
			if line == "Resources:" {
				inResources = true
			} else if line != "" {
				statement = append(statement, line)
			}
			continue
		}

		var err error
		switch key {
		case "URI":
			m.URI = value
		case "Version":
			m.Version = value
		case "Chain ID":
			m.ChainID, err = strconv.ParseInt(value, 10, 64)
		case "Nonce":
			m.Nonce = value
		case "Issued At":
			m.IssuedAt, err = time.Parse(time.RFC3339, value)
		case "Expiration Time":
			var t time.Time
			t, err = time.Parse(time.RFC3339, value)
			m.ExpirationTime = &t
		case "Not Before":
			var t time.Time
			t, err = time.Parse(time.RFC3339, value)
			m.NotBefore = &t
		case "Request ID":
			m.RequestID = value
		default:
			statement = append(statement, line)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", errMalformedSIWE, key, err)
		}
	}
	m.Statement = strings.Join(statement, "\n")

	if m.Nonce == "" || m.ChainID == 0 || m.URI == "" {
		return nil, fmt.Errorf("%w: missing required field", errMalformedSIWE)
	}

	return m, nil
}

// String renders the message in EIP-4361 form
func (m *SIWEMessage) String() string {
	var b strings.Builder
	b.WriteString(m.Domain + siweHeaderSuffix + "\n")
	b.WriteString(m.Address + "\n\n")
	if m.Statement != "" {
		b.WriteString(m.Statement + "\n\n")
	}
	version := m.Version
	if version == "" {
		version = "1"
	}
	fmt.Fprintf(&b, "URI: %s\nVersion: %s\nChain ID: %d\nNonce: %s\nIssued At: %s",
		m.URI, version, m.ChainID, m.Nonce, m.IssuedAt.UTC().Format(time.RFC3339))
	if m.ExpirationTime != nil {
		b.WriteString("\nExpiration Time: " + m.ExpirationTime.UTC().Format(time.RFC3339))
	}
	if m.NotBefore != nil {
		b.WriteString("\nNot Before: " + m.NotBefore.UTC().Format(time.RFC3339))
	}
	if m.RequestID != "" {
		b.WriteString("\nRequest ID: " + m.RequestID)
	}
	if len(m.Resources) > 0 {
		b.WriteString("\nResources:")
		for _, r := range m.Resources {
			b.WriteString("\n- " + r)
		}
	}
	return b.String()
}

// ExtractNonce pulls the "Nonce:" field out of a signed message
func ExtractNonce(message string) (string, bool) {
	for _, line := range strings.Split(message, "\n") {
		if v, ok := strings.CutPrefix(strings.TrimSpace(line), "Nonce:"); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v, true
			}
		}
	}
	return "", false
}
