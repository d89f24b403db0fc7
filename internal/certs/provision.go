// Package certs provisions the TLS identity for the control channel:
// load a persisted PKCS#12 bundle if one exists, otherwise generate a
// self-signed RSA certificate and persist it, grounded on the
// generate-self-signed-then-wrap-in-tls.Config shape used elsewhere in
// this corpus (ECDSA there; RSA with a wider SAN set and PKCS#12
// persistence here).
package certs

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"os"
	"time"

	"software.sslmate.com/src/go-pkcs12"
)

const (
	rsaKeyBits     = 2048
	validity       = 5 * 365 * 24 * time.Hour
	bundlePassword = ""
)

// Identity is a loaded or freshly generated TLS server identity.
type Identity struct {
	Certificate tls.Certificate
}

// TLSConfig returns a server-side tls.Config presenting this identity.
func (id *Identity) TLSConfig() *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{id.Certificate},
		MinVersion:   tls.VersionTLS12,
	}
}

// LoadOrGenerate loads the PKCS#12 bundle at path, or generates a new
// self-signed identity and persists it there if none exists.
func LoadOrGenerate(path, hostname, publicIP string) (*Identity, error) {
	if data, err := os.ReadFile(path); err == nil {
		return decodeBundle(data)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("certs: reading bundle %s: %w", path, err)
	}

	identity, bundle, err := generate(hostname, publicIP)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, bundle, 0o600); err != nil {
		return nil, fmt.Errorf("certs: writing bundle %s: %w", path, err)
	}
	return identity, nil
}

func decodeBundle(data []byte) (*Identity, error) {
	key, cert, err := pkcs12.Decode(data, bundlePassword)
	if err != nil {
		return nil, fmt.Errorf("certs: decoding PKCS#12 bundle: %w", err)
	}
	return &Identity{
		Certificate: tls.Certificate{
			Certificate: [][]byte{cert.Raw},
			PrivateKey:  key,
			Leaf:        cert,
		},
	}, nil
}

func generate(hostname, publicIP string) (*Identity, []byte, error) {
	key, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, nil, fmt.Errorf("certs: generating RSA key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, fmt.Errorf("certs: generating serial: %w", err)
	}

	machineName, _ := os.Hostname()

	dnsNames := []string{hostname, "localhost", "*." + hostname}
	if machineName != "" {
		dnsNames = append(dnsNames, machineName)
	}
	ipAddrs := []net.IP{
		net.IPv4zero, net.IPv4(127, 0, 0, 1), net.IPv6zero, net.IPv6loopback,
	}
	if publicIP != "" {
		dnsNames = append(dnsNames, publicIP)
		if ip := net.ParseIP(publicIP); ip != nil {
			ipAddrs = append(ipAddrs, ip)
		}
	}
	if ifaceIPs, err := localInterfaceIPv4s(); err == nil {
		ipAddrs = append(ipAddrs, ifaceIPs...)
	}

	tmpl := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: hostname},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(validity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              dnsNames,
		IPAddresses:           ipAddrs,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, nil, fmt.Errorf("certs: creating certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, nil, fmt.Errorf("certs: parsing generated certificate: %w", err)
	}

	bundle, err := pkcs12.Encode(rand.Reader, key, cert, nil, bundlePassword)
	if err != nil {
		return nil, nil, fmt.Errorf("certs: encoding PKCS#12 bundle: %w", err)
	}

	identity := &Identity{
		Certificate: tls.Certificate{
			Certificate: [][]byte{certDER},
			PrivateKey:  key,
			Leaf:        cert,
		},
	}
	return identity, bundle, nil
}

func localInterfaceIPv4s() ([]net.IP, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}
	var ips []net.IP
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		if v4 := ipNet.IP.To4(); v4 != nil {
			ips = append(ips, v4)
		}
	}
	return ips, nil
}
