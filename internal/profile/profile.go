// Package profile stores the object store connection profiles on disk.
package profile

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

type Provider string

const (
	ProviderAWS        Provider = "aws_s3"
	ProviderGCS        Provider = "google_cloud_storage"
	ProviderAzure      Provider = "azure_blob"
	ProviderMinIO      Provider = "min_i_o"
	ProviderRustFS     Provider = "rust_f_s"
	ProviderVolcengine Provider = "volcengine_t_o_s"
	ProviderTencent    Provider = "tencent_c_o_s"
	ProviderBaidu      Provider = "baidu_b_o_s"
)

var providers = []Provider{
	ProviderAWS, ProviderGCS, ProviderAzure, ProviderMinIO,
	ProviderRustFS, ProviderVolcengine, ProviderTencent, ProviderBaidu,
}

// Providers lists every supported provider value.
func Providers() []Provider {
	return append([]Provider(nil), providers...)
}

func (p Provider) Valid() bool {
	for _, v := range providers {
		if p == v {
			return true
		}
	}
	return false
}

// SelfHosted reports whether the provider is usually deployed behind a single host
// and therefore needs path style addressing.
func (p Provider) SelfHosted() bool {
	return p == ProviderMinIO || p == ProviderRustFS
}

type AddressingStyle string

const (
	AddressingPath          AddressingStyle = "path"
	AddressingVirtualHosted AddressingStyle = "virtual_hosted"
)

type SignatureVersion string

const (
	SignatureV2 SignatureVersion = "v2"
	SignatureV4 SignatureVersion = "v4"
)

const DefaultRegion = "us-east-1"

var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrDuplicateName   = errors.New("profile name already in use")
)

type Profile struct {
	ID               string           `json:"id" yaml:"id"`
	Name             string           `json:"name" yaml:"name"`
	Provider         Provider         `json:"provider" yaml:"provider"`
	Endpoint         string           `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Region           string           `json:"region" yaml:"region"`
	AccessKeyID      string           `json:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey  string           `json:"secret_access_key" yaml:"secret_access_key"`
	AddressingStyle  AddressingStyle  `json:"addressing_style" yaml:"addressing_style"`
	SignatureVersion SignatureVersion `json:"signature_version" yaml:"signature_version"`
}

// UsePathStyle reports whether requests should address buckets in the URL path.
func (p *Profile) UsePathStyle() bool {
	return p.AddressingStyle == AddressingPath || p.Provider.SelfHosted()
}

// Normalize fills in defaults for optional fields.
func (p *Profile) Normalize() {
	p.Name = strings.TrimSpace(p.Name)
	p.Endpoint = strings.TrimRight(strings.TrimSpace(p.Endpoint), "/")
	if p.Region == "" {
		p.Region = DefaultRegion
	}
	if p.AddressingStyle == "" {
		if p.Provider.SelfHosted() {
			p.AddressingStyle = AddressingPath
		} else {
			p.AddressingStyle = AddressingVirtualHosted
		}
	}
	if p.SignatureVersion == "" {
		p.SignatureVersion = SignatureV4
	}
}

func (p *Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("name required")
	}
	if !p.Provider.Valid() {
		return fmt.Errorf("unknown provider %q", p.Provider)
	}
	if p.Endpoint != "" {
		u, err := url.Parse(p.Endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid endpoint %q", p.Endpoint)
		}
	} else if p.Provider.SelfHosted() {
		return fmt.Errorf("endpoint required for provider %s", p.Provider)
	}
	if p.AccessKeyID == "" || p.SecretAccessKey == "" {
		return fmt.Errorf("access key id and secret required")
	}
	switch p.AddressingStyle {
	case AddressingPath, AddressingVirtualHosted:
	default:
		return fmt.Errorf("invalid addressing style %q", p.AddressingStyle)
	}
	switch p.SignatureVersion {
	case SignatureV2, SignatureV4:
	default:
		return fmt.Errorf("invalid signature version %q", p.SignatureVersion)
	}
	return nil
}
