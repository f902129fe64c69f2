package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
)

// ErrCloudantBinding is returned when BINDING_CLOUDANT lacks a required credential field.
var ErrCloudantBinding = errors.New("Error - Failed to retrieve options. Check that app is bound to a Cloudant service.")

// bindingRequiredKeys are the fields every Cloudant binding must carry
var bindingRequiredKeys = []string{"host", "username", "password", "port", "url"}

// CloudantCredentials are resolved connection details for the document store
type CloudantCredentials struct {
	APIKey   string
	Username string
	Password string
	Host     string
	Port     int
	URL      string
}

// Endpoint returns URL without any user info. Credentials are sent through the auth option instead.
func (c *CloudantCredentials) Endpoint() (string, error) {
	parsed, err := url.Parse(c.URL)
	if err != nil {
		return "", fmt.Errorf("invalid Cloudant URL: %w", err)
	}
	parsed.User = nil
	return parsed.String(), nil
}

// CredentialProvider resolves Cloudant credentials
type CredentialProvider interface {
	Credentials() (*CloudantCredentials, error)
	Source() string
}

// NewCredentialProvider prefers a platform binding over individual settings
func NewCredentialProvider(c CloudantConfig) CredentialProvider {
	if c.Binding != "" {
		return &BindingCredentialProvider{binding: c.Binding}
	}
	return &SettingsCredentialProvider{config: c}
}

// BindingCredentialProvider reads the JSON document in BINDING_CLOUDANT
type BindingCredentialProvider struct {
	binding string
}

func (b *BindingCredentialProvider) Source() string {
	return "BINDING_CLOUDANT"
}

func (b *BindingCredentialProvider) Credentials() (*CloudantCredentials, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(b.binding), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCloudantBinding, err)
	}

	for _, key := range bindingRequiredKeys {
		if _, ok := raw[key]; !ok {
			return nil, ErrCloudantBinding
		}
	}

	port, err := bindingPort(raw["port"])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCloudantBinding, err)
	}

	return &CloudantCredentials{
		APIKey:   bindingString(raw["apikey"]),
		Username: bindingString(raw["username"]),
		Password: bindingString(raw["password"]),
		Host:     bindingString(raw["host"]),
		Port:     port,
		URL:      bindingString(raw["url"]),
	}, nil
}

// SettingsCredentialProvider uses the cloudant.* settings (CLOUDANT_* variables)
type SettingsCredentialProvider struct {
	config CloudantConfig
}

func (s *SettingsCredentialProvider) Source() string {
	return "CLOUDANT_* settings"
}

func (s *SettingsCredentialProvider) Credentials() (*CloudantCredentials, error) {
	creds := &CloudantCredentials{
		APIKey:   s.config.APIKey,
		Username: s.config.Username,
		Password: s.config.Password,
		Host:     s.config.Host,
		Port:     s.config.Port,
		URL:      s.config.URL,
	}
	if creds.URL == "" {
		return nil, ErrCloudantBinding
	}

	// Credentials embedded in the URL fill in anything not set explicitly
	if parsed, err := url.Parse(creds.URL); err == nil && parsed.User != nil {
		if creds.Username == "" {
			creds.Username = parsed.User.Username()
		}
		if pw, ok := parsed.User.Password(); ok && creds.Password == "" {
			creds.Password = pw
		}
	}
	return creds, nil
}

func bindingString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}

func bindingPort(v interface{}) (int, error) {
	switch val := v.(type) {
	case float64:
		return int(val), nil
	case string:
		return strconv.Atoi(val)
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("invalid port %v", v)
	}
}
