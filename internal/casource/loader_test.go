package casource

import (
	"context"
	"crypto/rand"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/docsign/internal/pki"
)

type fakeSSM struct {
	params map[string]string
}

func (f *fakeSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	v, ok := f.params[aws.ToString(in.Name)]
	if !ok {
		return nil, errors.New("ParameterNotFound")
	}
	return &ssm.GetParameterOutput{Parameter: &ssmtypes.Parameter{Value: aws.String(v)}}, nil
}

type testCA struct {
	certPEM []byte
	keyPEM  []byte
}

func newTestCA(t *testing.T, passphrase []byte) testCA {
	t.Helper()
	id, err := pki.NewIdentity("AU", "", "", "Acme", "Acme")
	require.NoError(t, err)

	issued, err := pki.IssueChain(rand.Reader, pki.ChainRequest{
		Root:         pki.CAIdentity(id, "Root CA"),
		Intermediate: pki.CAIdentity(id, "Intermediate CA"),
		Leaf:         id,
		Validity:     pki.ValidFor(time.Now().UTC(), 24*time.Hour),
		Bits:         pki.KeyBits1024,
	})
	require.NoError(t, err)

	keyPEM, err := pki.EncodePrivateKeyPEM(issued.IntermediateKey.PrivateKey, passphrase)
	require.NoError(t, err)

	issued.Destroy()

	return testCA{certPEM: issued.Chain[1].PEM(), keyPEM: keyPEM}
}

func issueLeaf(t *testing.T, signer pki.CASigner) *pki.IssuedIdentity {
	t.Helper()
	leaf, err := pki.IssueFromCA(rand.Reader, signer, pki.LeafRequest{
		Identity: pki.Identity{CommonName: "jane"},
		Validity: pki.ValidFor(time.Now().UTC(), time.Hour),
		Bits:     pki.KeyBits1024,
	})
	require.NoError(t, err)
	t.Cleanup(leaf.Destroy)
	return leaf
}

func TestConfig_Validate(t *testing.T) {
	require.False(t, Config{}.Enabled())
	require.ErrorIs(t, Config{}.Validate(), ErrIncompleteConfig)

	files := Config{CertPath: "ca.pem", KeyPath: "ca_key.pem"}
	require.True(t, files.Enabled())
	require.False(t, files.NeedsAWS())
	require.NoError(t, files.Validate())

	params := Config{CertParameter: "/ca/cert", KeyParameter: "/ca/key"}
	require.True(t, params.NeedsAWS())
	require.NoError(t, params.Validate())

	require.ErrorIs(t, Config{CertPath: "ca.pem"}.Validate(), ErrIncompleteConfig)
	require.ErrorIs(t, Config{CertPath: "ca.pem", CertParameter: "/ca/cert", KeyPath: "k"}.Validate(), ErrIncompleteConfig)
	require.ErrorIs(t, Config{CertPath: "ca.pem", KeyPath: "k", KeyParameter: "/ca/key"}.Validate(), ErrIncompleteConfig)
}

func TestLoader_Files(t *testing.T) {
	ca := newTestCA(t, []byte("secret"))
	dir := t.TempDir()
	certPath := filepath.Join(dir, "ca.pem")
	keyPath := filepath.Join(dir, "ca_key.pem")
	require.NoError(t, os.WriteFile(certPath, ca.certPEM, 0600))
	require.NoError(t, os.WriteFile(keyPath, ca.keyPEM, 0600))

	loader := &Loader{}

	signer, err := loader.Load(context.Background(), Config{CertPath: certPath, KeyPath: keyPath, Passphrase: []byte("secret")})
	require.NoError(t, err)

	leaf := issueLeaf(t, signer)
	caCert, err := signer.GetCACertificate()
	require.NoError(t, err)
	require.NoError(t, leaf.Certificate.CheckSignatureFrom(caCert))

	_, err = loader.Load(context.Background(), Config{CertPath: certPath, KeyPath: keyPath})
	require.ErrorIs(t, err, pki.ErrIncorrectPassphrase)

	_, err = loader.Load(context.Background(), Config{CertPath: certPath, KeyParameter: "/ca/key"})
	require.ErrorIs(t, err, ErrIncompleteConfig)
}

func TestLoader_SSM(t *testing.T) {
	ca := newTestCA(t, nil)
	loader := &Loader{SSM: &fakeSSM{params: map[string]string{
		"/ca/cert": string(ca.certPEM),
		"/ca/key":  string(ca.keyPEM),
	}}}

	signer, err := loader.Load(context.Background(), Config{CertParameter: "/ca/cert", KeyParameter: "/ca/key"})
	require.NoError(t, err)
	issueLeaf(t, signer)

	_, err = loader.Load(context.Background(), Config{CertParameter: "/missing", KeyParameter: "/ca/key"})
	require.Error(t, err)
}
