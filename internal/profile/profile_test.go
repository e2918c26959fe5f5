package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProfile_Validate(t *testing.T) {
	base := func() Profile {
		p := Profile{
			Name:            "aws",
			Provider:        ProviderAWS,
			AccessKeyID:     "AKIA",
			SecretAccessKey: "secret",
		}
		p.Normalize()
		return p
	}

	tests := []struct {
		name    string
		mutate  func(p *Profile)
		wantErr string
	}{
		{name: "valid", mutate: func(p *Profile) {}},
		{name: "missing name", mutate: func(p *Profile) { p.Name = "" }, wantErr: "name required"},
		{name: "unknown provider", mutate: func(p *Profile) { p.Provider = "ftp" }, wantErr: "unknown provider"},
		{name: "bad endpoint", mutate: func(p *Profile) { p.Endpoint = "localhost:9000" }, wantErr: "invalid endpoint"},
		{name: "minio needs endpoint", mutate: func(p *Profile) { p.Provider = ProviderMinIO }, wantErr: "endpoint required"},
		{name: "missing keys", mutate: func(p *Profile) { p.SecretAccessKey = "" }, wantErr: "access key"},
		{name: "bad addressing", mutate: func(p *Profile) { p.AddressingStyle = "dns" }, wantErr: "addressing style"},
		{name: "bad signature", mutate: func(p *Profile) { p.SignatureVersion = "v3" }, wantErr: "signature version"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base()
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestProfile_UsePathStyle(t *testing.T) {
	aws := Profile{Provider: ProviderAWS}
	aws.Normalize()
	assert.False(t, aws.UsePathStyle())

	aws.AddressingStyle = AddressingPath
	assert.True(t, aws.UsePathStyle())

	rustfs := Profile{Provider: ProviderRustFS, AddressingStyle: AddressingVirtualHosted}
	assert.True(t, rustfs.UsePathStyle())
}
