/*
 * MIT License
 *
 * Copyright (c) 2025 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package tcp_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"io"
	"math/big"
	"net"
	"time"

	certca "github.com/nabbar/carbon/certificates/ca"
	libtls "github.com/nabbar/carbon/certificates"
	libptc "github.com/nabbar/carbon/network/protocol"
	sckcfg "github.com/nabbar/carbon/socket/config"
	sckclt "github.com/nabbar/carbon/socket/client/tcp"
	scksrv "github.com/nabbar/carbon/socket/server/tcp"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func generateSelfSignedCert() (certPEM, keyPEM []byte) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	Expect(err).ToNot(HaveOccurred())

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	Expect(err).ToNot(HaveOccurred())

	tmpl := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "localhost"},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
	}

	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	Expect(err).ToNot(HaveOccurred())

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})
	return
}

func createTLSConfigs() (server, client libtls.TLSConfig) {
	certPEM, keyPEM := generateSelfSignedCert()

	srvCfg := libtls.New()
	Expect(srvCfg.AddCertificatePairString(string(keyPEM), string(certPEM))).To(Succeed())

	ca, err := certca.Parse(string(certPEM))
	Expect(err).ToNot(HaveOccurred())

	cliCfg := libtls.New()
	Expect(cliCfg.AddRootCA(ca)).To(BeTrue())

	return srvCfg, cliCfg
}

var _ = Describe("TCP Client TLS", func() {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(globalCtx, 5*time.Second)
	})

	AfterEach(func() {
		cancel()
	})

	It("completes a TLS handshake against a matching server", func() {
		srvTLS, cliTLS := createTLSConfigs()
		addr := getFreeTCPAddress()

		srv, err := scksrv.New(nil, echoHandler, sckcfg.Server{Network: libptc.NetworkTCP, Address: addr})
		Expect(err).ToNot(HaveOccurred())
		Expect(srv.SetTLS(true, srvTLS)).To(Succeed())
		go func() { _ = srv.Listen(ctx) }()
		defer func() { _ = srv.Shutdown(ctx) }()

		Eventually(func() bool {
			c, e := net.DialTimeout("tcp", addr, 100*time.Millisecond)
			if e != nil {
				return false
			}
			_ = c.Close()
			return true
		}, 2*time.Second, 20*time.Millisecond).Should(BeTrue())

		cli, err := sckclt.New(nil, sckcfg.Client{Network: libptc.NetworkTCP, Address: addr})
		Expect(err).ToNot(HaveOccurred())
		Expect(cli.SetTLS(true, cliTLS, "localhost")).To(Succeed())
		defer func() { _ = cli.Close() }()

		Expect(cli.Connect(ctx)).To(Succeed())

		msg := []byte("secure\n")
		_, err = cli.Write(msg)
		Expect(err).ToNot(HaveOccurred())

		got := make([]byte, len(msg))
		_, err = io.ReadFull(cli, got)
		Expect(err).ToNot(HaveOccurred())
		Expect(got).To(Equal(msg))
	})

	It("rejects SetTLS with a nil config when enabling", func() {
		cli, err := sckclt.New(nil, sckcfg.Client{Network: libptc.NetworkTCP, Address: "127.0.0.1:8080"})
		Expect(err).ToNot(HaveOccurred())
		defer func() { _ = cli.Close() }()

		err = cli.SetTLS(true, nil, "localhost")
		Expect(err).To(MatchError(sckclt.ErrInvalidTLSConfig))
	})

	It("disables TLS when called with enable=false", func() {
		cli, err := sckclt.New(nil, sckcfg.Client{Network: libptc.NetworkTCP, Address: "127.0.0.1:8080"})
		Expect(err).ToNot(HaveOccurred())
		defer func() { _ = cli.Close() }()

		_, cliTLS := createTLSConfigs()
		Expect(cli.SetTLS(true, cliTLS, "localhost")).To(Succeed())
		Expect(cli.SetTLS(false, nil, "")).To(Succeed())
	})
})
