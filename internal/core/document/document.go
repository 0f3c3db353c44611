package document

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
)

// claveLength is the fixed length of the document key assigned by the issuer.
const claveLength = 50

// Status is the processing state the ministry reports for a submitted document.
type Status string

const (
	StatusRecibido   Status = "recibido"
	StatusProcesando Status = "procesando"
	StatusAceptado   Status = "aceptado"
	StatusRechazado  Status = "rechazado"
	StatusError      Status = "error"
)

// ParseStatus normalizes an ind-estado value reported by the API.
func ParseStatus(s string) Status {
	return Status(strings.ToLower(strings.TrimSpace(s)))
}

// IsTerminal reports whether no further state transitions can occur.
// Documents in "recibido" or "procesando" are still moving through the pipeline.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusAceptado, StatusRechazado, StatusError:
		return true
	}
	return false
}

// Issuer identifies a party (issuer or receiver) before the ministry.
type Issuer struct {
	TipoIdentificacion   string `json:"tipoIdentificacion"`
	NumeroIdentificacion string `json:"numeroIdentificacion"`
}

// SubmissionRequest is the wire payload accepted by POST /recepcion.
// The comprobanteXml body arrives ready to send (built and signed elsewhere);
// this package never constructs or inspects it.
type SubmissionRequest struct {
	Clave          string  `json:"clave"`
	Fecha          string  `json:"fecha"`
	Emisor         Issuer  `json:"emisor"`
	Receptor       *Issuer `json:"receptor,omitempty"`
	ComprobanteXML string  `json:"comprobanteXml"`
	CallbackURL    string  `json:"callbackUrl,omitempty"`
}

// StatusResponse is the wire payload returned by GET /recepcion/{clave} and
// pushed by the ministry to callback URLs. RespuestaXML carries the
// base64-encoded MensajeHacienda XML once processing has finished.
type StatusResponse struct {
	Clave        string `json:"clave"`
	IndEstado    string `json:"ind-estado"`
	Fecha        string `json:"fecha,omitempty"`
	RespuestaXML string `json:"respuesta-xml,omitempty"`
}

// Status returns the normalized processing state.
func (r StatusResponse) Status() Status {
	return ParseStatus(r.IndEstado)
}

// DecodeRespuesta returns the respuesta-xml payload decoded from base64.
// An absent payload decodes to the empty string without error.
func (r StatusResponse) DecodeRespuesta() (string, error) {
	if r.RespuestaXML == "" {
		return "", nil
	}
	data, err := base64.StdEncoding.DecodeString(r.RespuestaXML)
	if err != nil {
		return "", fmt.Errorf("decode respuesta-xml: %w", err)
	}
	return string(data), nil
}

// SubmitAndWaitResult captures the outcome of one submit-and-wait run.
// It is created once, after the document reaches a terminal state.
type SubmitAndWaitResult struct {
	Accepted         bool
	FinalStatus      Status
	ResponseDate     string
	DecodedResponse  string
	RejectionReason  string
	SubmitStatusCode int
	PollAttempts     int
	Location         string
}

// The ministry's MensajeHacienda XML sometimes carries a namespace prefix,
// so both patterns tolerate one.
var (
	detalleMensajeRe = regexp.MustCompile(`(?s)<(?:\w+:)?DetalleMensaje>\s*(.*?)\s*</(?:\w+:)?DetalleMensaje>`)
	codigoMensajeRe  = regexp.MustCompile(`<(?:\w+:)?CodigoMensaje>\s*(\d+)\s*</(?:\w+:)?CodigoMensaje>`)
)

// ExtractRejectionReason pulls a human-readable rejection reason out of a
// decoded MensajeHacienda XML body. Returns the empty string when the
// message carries no DetalleMensaje; that is not an error.
func ExtractRejectionReason(decodedXML string) string {
	m := detalleMensajeRe.FindStringSubmatch(decodedXML)
	if m == nil {
		return ""
	}
	detalle := strings.TrimSpace(m[1])
	if detalle == "" {
		return ""
	}
	if c := codigoMensajeRe.FindStringSubmatch(decodedXML); c != nil {
		return fmt.Sprintf("[%s] %s", c[1], detalle)
	}
	return detalle
}

// IsValidClave reports whether s looks like a 50-digit document key.
func IsValidClave(s string) bool {
	if len(s) != claveLength {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
