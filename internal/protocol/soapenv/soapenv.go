// Package soapenv implements the OCPP-S binding: SOAP 1.2 envelopes with
// WS-Addressing headers and the chargeBoxIdentity routing header.
//
// Ownership boundary:
// - header extraction for routing (chargeBoxIdentity, From)
// - classification of envelopes into Call, CallResult and CallError
// - SOAP Fault mapping for CallError
package soapenv

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/danmuck/ocppctl/internal/protocol"
)

const (
	NamespaceSOAP12        = "http://www.w3.org/2003/05/soap-envelope"
	NamespaceAddressing    = "http://www.w3.org/2005/08/addressing"
	NamespaceCentralSystem = "urn://Ocpp/Cs/2015/10/"
	NamespaceChargePoint   = "urn://Ocpp/Cp/2015/10/"

	ActionFault = NamespaceAddressing + "/soap/fault"

	ContentType = "application/soap+xml; charset=utf-8"
)

var (
	ErrNotEnvelope     = errors.New("soapenv: not a soap envelope")
	ErrMissingAction   = errors.New("soapenv: missing wsa:Action")
	ErrMissingIdentity = errors.New("soapenv: missing chargeBoxIdentity")
	ErrUnrelatedReply  = errors.New("soapenv: reply without wsa:RelatesTo")
)

// Header is the routing-relevant subset of a SOAP header.
type Header struct {
	ChargeBoxIdentity string
	Action            string
	MessageID         string
	RelatesTo         string
	From              string
	ReplyTo           string
	To                string
}

// ReplyAddress is where responses and outbound calls for this peer go.
func (h Header) ReplyAddress() string {
	if strings.TrimSpace(h.ReplyTo) != "" && h.ReplyTo != NamespaceAddressing+"/anonymous" {
		return strings.TrimSpace(h.ReplyTo)
	}
	return strings.TrimSpace(h.From)
}

type envelope struct {
	XMLName xml.Name  `xml:"Envelope"`
	Header  rawHeader `xml:"Header"`
	Body    rawBody   `xml:"Body"`
}

type rawHeader struct {
	ChargeBoxIdentity string      `xml:"chargeBoxIdentity"`
	Action            string      `xml:"Action"`
	MessageID         string      `xml:"MessageID"`
	RelatesTo         string      `xml:"RelatesTo"`
	From              addressElem `xml:"From"`
	ReplyTo           addressElem `xml:"ReplyTo"`
	To                string      `xml:"To"`
}

type addressElem struct {
	Address string `xml:"Address"`
}

type rawBody struct {
	Inner []byte `xml:",innerxml"`
	Fault *fault `xml:"Fault"`
}

type fault struct {
	Code struct {
		Value   string `xml:"Value"`
		Subcode struct {
			Value string `xml:"Value"`
		} `xml:"Subcode"`
	} `xml:"Code"`
	Reason struct {
		Text string `xml:"Text"`
	} `xml:"Reason"`
}

func parseEnvelope(data []byte) (envelope, error) {
	var env envelope
	if err := xml.Unmarshal(data, &env); err != nil {
		return envelope{}, fmt.Errorf("%w: %v", ErrNotEnvelope, err)
	}
	return env, nil
}

// ReadHeader extracts routing headers without classifying the message.
func ReadHeader(data []byte) (Header, error) {
	env, err := parseEnvelope(data)
	if err != nil {
		return Header{}, err
	}
	return headerFrom(env.Header), nil
}

func headerFrom(h rawHeader) Header {
	return Header{
		ChargeBoxIdentity: strings.TrimSpace(h.ChargeBoxIdentity),
		Action:            strings.TrimSpace(h.Action),
		MessageID:         strings.TrimSpace(h.MessageID),
		RelatesTo:         strings.TrimSpace(h.RelatesTo),
		From:              strings.TrimSpace(h.From.Address),
		ReplyTo:           strings.TrimSpace(h.ReplyTo.Address),
		To:                strings.TrimSpace(h.To),
	}
}

// Addressing fixes the header values one endpoint writes. OCPP-S qualifies
// each body by the service it belongs to, so Calls an endpoint sends and
// replies it sends live in different namespaces.
type Addressing struct {
	ChargeBoxIdentity string
	From              string
	To                string
	RequestNamespace  string
	ResponseNamespace string
}

// CentralSystemAddressing calls the charge point service and answers for the
// central system service.
func CentralSystemAddressing(identity, from, to string) Addressing {
	return Addressing{
		ChargeBoxIdentity: identity,
		From:              from,
		To:                to,
		RequestNamespace:  NamespaceChargePoint,
		ResponseNamespace: NamespaceCentralSystem,
	}
}

// ChargePointAddressing calls the central system service and answers for
// the charge point service.
func ChargePointAddressing(identity, from, to string) Addressing {
	return Addressing{
		ChargeBoxIdentity: identity,
		From:              from,
		To:                to,
		RequestNamespace:  NamespaceCentralSystem,
		ResponseNamespace: NamespaceChargePoint,
	}
}

// Codec is the OCPP-S protocol.Codec for one session. It remembers the
// action of each inbound Call until its reply is encoded, because SOAP
// responses name the action and CallResult does not carry one.
type Codec struct {
	mu      sync.Mutex
	addr    Addressing
	pending map[string]string
}

var _ protocol.Codec = (*Codec)(nil)

func NewCodec(addr Addressing) *Codec {
	if addr.RequestNamespace == "" {
		addr.RequestNamespace = NamespaceChargePoint
	}
	if addr.ResponseNamespace == "" {
		addr.ResponseNamespace = NamespaceCentralSystem
	}
	return &Codec{addr: addr, pending: make(map[string]string)}
}

// SetTo updates the destination written into outbound envelopes.
func (c *Codec) SetTo(to string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addr.To = strings.TrimSpace(to)
}

func (c *Codec) Addressing() Addressing {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addr
}

func (c *Codec) Encode(msg protocol.Message) ([]byte, error) {
	if msg == nil {
		return nil, protocol.ErrUnsupportedMessage
	}
	if strings.TrimSpace(msg.UniqueID()) == "" {
		return nil, protocol.ErrMissingMessageID
	}
	addr := c.Addressing()
	switch m := msg.(type) {
	case *protocol.Call:
		if strings.TrimSpace(m.Action) == "" {
			return nil, ErrMissingAction
		}
		h := Header{
			ChargeBoxIdentity: addr.ChargeBoxIdentity,
			Action:            "/" + m.Action,
			MessageID:         m.ID,
			From:              addr.From,
			ReplyTo:           addr.From,
			To:                addr.To,
		}
		return writeEnvelope(h, m.Payload, addr.RequestNamespace), nil
	case *protocol.CallResult:
		action := c.takeAction(m.ID)
		h := Header{
			ChargeBoxIdentity: addr.ChargeBoxIdentity,
			Action:            "/" + action + "Response",
			MessageID:         "urn:uuid:" + uuid.NewString(),
			RelatesTo:         m.ID,
			To:                addr.To,
		}
		return writeEnvelope(h, m.Payload, addr.ResponseNamespace), nil
	case *protocol.CallError:
		c.takeAction(m.ID)
		h := Header{
			ChargeBoxIdentity: addr.ChargeBoxIdentity,
			Action:            ActionFault,
			MessageID:         "urn:uuid:" + uuid.NewString(),
			RelatesTo:         m.ID,
			To:                addr.To,
		}
		return writeEnvelope(h, faultBody(m), addr.ResponseNamespace), nil
	default:
		return nil, fmt.Errorf("%w: %T", protocol.ErrUnsupportedMessage, msg)
	}
}

func (c *Codec) Decode(data []byte) (protocol.Message, error) {
	env, err := parseEnvelope(data)
	if err != nil {
		return nil, &protocol.DecodeError{Kind: "envelope", Err: fmt.Errorf("%w: %w", protocol.ErrMalformedMessage, err)}
	}
	h := headerFrom(env.Header)

	if env.Body.Fault != nil {
		if h.RelatesTo == "" {
			return nil, decodeErr("call_error", protocol.MessageTypeCallError, "", ErrUnrelatedReply)
		}
		return &protocol.CallError{
			ID:          h.RelatesTo,
			Code:        protocol.ErrorCode(localName(env.Body.Fault.Code.Subcode.Value, env.Body.Fault.Code.Value)),
			Description: strings.TrimSpace(env.Body.Fault.Reason.Text),
		}, nil
	}

	if h.RelatesTo != "" {
		return &protocol.CallResult{ID: h.RelatesTo, Payload: bytes.TrimSpace(env.Body.Inner)}, nil
	}

	action := strings.TrimPrefix(h.Action, "/")
	if action == "" {
		return nil, decodeErr("call", protocol.MessageTypeCall, h.MessageID, ErrMissingAction)
	}
	if strings.HasSuffix(action, "Response") {
		return nil, decodeErr("call_result", protocol.MessageTypeCallResult, "", ErrUnrelatedReply)
	}
	if h.MessageID == "" {
		return nil, decodeErr("call", protocol.MessageTypeCall, "", protocol.ErrMissingMessageID)
	}
	c.mu.Lock()
	c.pending[h.MessageID] = action
	c.mu.Unlock()
	return &protocol.Call{ID: h.MessageID, Action: action, Payload: bytes.TrimSpace(env.Body.Inner)}, nil
}

// MarshalPayload encodes v and places its root element in the service
// namespace: the request namespace when v names an action, the response
// namespace otherwise.
func (c *Codec) MarshalPayload(v any) ([]byte, error) {
	out, err := xml.Marshal(v)
	if err != nil {
		return nil, err
	}
	addr := c.Addressing()
	ns := addr.ResponseNamespace
	if _, ok := v.(interface{ Action() string }); ok {
		ns = addr.RequestNamespace
	}
	return qualifyRoot(out, ns), nil
}

func qualifyRoot(doc []byte, ns string) []byte {
	if ns == "" || len(doc) == 0 || doc[0] != '<' {
		return doc
	}
	end := bytes.IndexByte(doc, '>')
	if end < 0 {
		return doc
	}
	if bytes.Contains(doc[:end], []byte("xmlns=")) {
		return doc
	}
	at := end
	if doc[end-1] == '/' {
		at = end - 1
	}
	out := make([]byte, 0, len(doc)+len(ns)+9)
	out = append(out, doc[:at]...)
	out = append(out, ` xmlns="`...)
	out = append(out, ns...)
	out = append(out, '"')
	out = append(out, doc[at:]...)
	return out
}

func (c *Codec) UnmarshalPayload(data []byte, v any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	return xml.Unmarshal(data, v)
}

func (c *Codec) takeAction(id string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	action, ok := c.pending[id]
	if !ok {
		return ""
	}
	delete(c.pending, id)
	return action
}

func decodeErr(kind string, typ protocol.MessageType, id string, err error) error {
	return &protocol.DecodeError{
		Kind:      kind,
		Type:      typ,
		MessageID: id,
		Err:       fmt.Errorf("%w: %w", protocol.ErrMalformedMessage, err),
	}
}

func localName(values ...string) string {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if i := strings.LastIndex(v, ":"); i >= 0 {
			return v[i+1:]
		}
		return v
	}
	return string(protocol.GenericError)
}

func writeEnvelope(h Header, body []byte, namespace string) []byte {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.WriteString(`<soap:Envelope xmlns:soap="` + NamespaceSOAP12 + `" xmlns:wsa="` + NamespaceAddressing + `"`)
	if namespace != "" {
		buf.WriteString(` xmlns:ocpp="` + namespace + `"`)
	}
	buf.WriteString(`><soap:Header>`)
	writeElem(&buf, "ocpp:chargeBoxIdentity", h.ChargeBoxIdentity, namespace != "")
	writeElem(&buf, "wsa:Action", h.Action, true)
	writeElem(&buf, "wsa:MessageID", h.MessageID, true)
	writeElem(&buf, "wsa:RelatesTo", h.RelatesTo, false)
	if h.From != "" {
		buf.WriteString("<wsa:From>")
		writeElem(&buf, "wsa:Address", h.From, true)
		buf.WriteString("</wsa:From>")
	}
	if h.ReplyTo != "" {
		buf.WriteString("<wsa:ReplyTo>")
		writeElem(&buf, "wsa:Address", h.ReplyTo, true)
		buf.WriteString("</wsa:ReplyTo>")
	}
	writeElem(&buf, "wsa:To", h.To, false)
	buf.WriteString(`</soap:Header><soap:Body>`)
	buf.Write(body)
	buf.WriteString(`</soap:Body></soap:Envelope>`)
	return buf.Bytes()
}

func writeElem(buf *bytes.Buffer, name, value string, always bool) {
	if value == "" && !always {
		return
	}
	buf.WriteString("<" + name + ">")
	_ = xml.EscapeText(buf, []byte(value))
	buf.WriteString("</" + name + ">")
}

func faultBody(e *protocol.CallError) []byte {
	side := "soap:Sender"
	if e.Code == protocol.InternalError || e.Code == protocol.GenericError {
		side = "soap:Receiver"
	}
	var buf bytes.Buffer
	buf.WriteString("<soap:Fault><soap:Code>")
	writeElem(&buf, "soap:Value", side, true)
	buf.WriteString("<soap:Subcode>")
	writeElem(&buf, "soap:Value", string(e.Code), true)
	buf.WriteString("</soap:Subcode></soap:Code><soap:Reason>")
	buf.WriteString(`<soap:Text xml:lang="en">`)
	_ = xml.EscapeText(&buf, []byte(e.Description))
	buf.WriteString("</soap:Text></soap:Reason></soap:Fault>")
	return buf.Bytes()
}
