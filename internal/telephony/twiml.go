package telephony

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strings"
)

// TwiML is a minimal Twilio Markup Language response builder.
// Only include primitives we need at the adapter boundary.

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlSay struct {
	XMLName xml.Name `xml:"Say"`
	Loop    int      `xml:"loop,attr,omitempty"`
	Text    string   `xml:",chardata"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

type twimlDial struct {
	XMLName   xml.Name `xml:"Dial"`
	CallerID  string   `xml:"callerId,attr,omitempty"`
	TimeLimit int      `xml:"timeLimit,attr,omitempty"`
	Record    string   `xml:"record,attr,omitempty"`
	Number    string   `xml:"Number,omitempty"`
	Client    string   `xml:"Client,omitempty"`
}

// DialTarget describes how an answered leg is connected. Exactly one of
// Number or Client must be set.
type DialTarget struct {
	CallerID         string
	Number           string
	Client           string
	Record           bool
	TimeLimitSeconds int
}

// RenderDial connects the current leg to a PSTN number or a browser client.
func RenderDial(t DialTarget) (string, error) {
	number, client := strings.TrimSpace(t.Number), strings.TrimSpace(t.Client)
	if (number == "") == (client == "") {
		return "", errors.New("telephony: dial needs exactly one of number or client")
	}
	d := twimlDial{CallerID: t.CallerID, TimeLimit: t.TimeLimitSeconds, Number: number, Client: client}
	if t.Record {
		d.Record = "record-from-answer"
	}
	return render(d)
}

// RenderSay reads message loop times.
func RenderSay(message string, loop int) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", errors.New("telephony: say needs a message")
	}
	return render(twimlSay{Loop: loop, Text: message}, twimlHangup{})
}

// RenderHangup ends the call, used when a voice webhook names an unknown call.
func RenderHangup() (string, error) {
	return render(twimlHangup{})
}

// VerificationMessage spells the code out digit by digit for text-to-speech.
func VerificationMessage(code string) string {
	digits := strings.Split(code, "")
	return "Your verification code is " + strings.Join(digits, ", ") + "."
}

func render(verbs ...any) (string, error) {
	r := twimlResponse{Verbs: verbs}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
