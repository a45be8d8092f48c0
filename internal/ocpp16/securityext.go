package ocpp16

import (
	"encoding/xml"

	"github.com/danmuck/ocppctl/internal/protocol/schema"
)

const (
	ActionSignCertificate = "SignCertificate"

	maxCSR = 5500
)

// SignCertificateRequest carries a PEM encoded PKCS#10 request from the
// charge point.
type SignCertificateRequest struct {
	XMLName xml.Name `json:"-" xml:"signCertificateRequest"`
	Csr     string   `json:"csr" xml:"csr"`
}

func NewSignCertificateRequest(csr string) *SignCertificateRequest {
	return &SignCertificateRequest{Csr: csr}
}

func (*SignCertificateRequest) Action() string { return ActionSignCertificate }

func (r *SignCertificateRequest) Validate() error {
	return schema.For(ActionSignCertificate).Required("csr", r.Csr, maxCSR).Err()
}

type SignCertificateConfirmation struct {
	XMLName xml.Name     `json:"-" xml:"signCertificateResponse"`
	Status  RemoteStatus `json:"status" xml:"status"`
}

func (c *SignCertificateConfirmation) Validate() error {
	return validateRemoteStatus(ActionSignCertificate, c.Status)
}
