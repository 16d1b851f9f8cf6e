package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.bug.st/serial"
)

const ctrlZ = 0x1A

// SMSModem sends text messages through a GSM modem on a serial port using
// plain AT commands. It writes the commands without waiting for the modem's
// replies, so a successful Send only means the bytes reached the port.
type SMSModem struct {
	port        string
	mode        *serial.Mode
	countryCode string
	open        func(port string, mode *serial.Mode) (io.WriteCloser, error)
}

// NewSMSModem creates a modem sender for port at baud. countryCode (without
// '+') is used to normalise local numbers to E.164.
func NewSMSModem(port string, baud int, countryCode string) *SMSModem {
	return &SMSModem{
		port:        port,
		mode:        &serial.Mode{BaudRate: baud, DataBits: 8, StopBits: serial.OneStopBit, Parity: serial.NoParity},
		countryCode: countryCode,
		open: func(port string, mode *serial.Mode) (io.WriteCloser, error) {
			return serial.Open(port, mode)
		},
	}
}

// Send pushes one message to the modem.
func (m *SMSModem) Send(ctx context.Context, destination, text string) error {
	number := E164(destination, m.countryCode)
	if number == "" || text == "" {
		return errors.New("sms: destination and message are required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p, err := m.open(m.port, m.mode)
	if err != nil {
		return fmt.Errorf("sms: open %s: %w", m.port, err)
	}
	defer p.Close()

	commands := [][]byte{
		[]byte("AT\r"),
		[]byte("AT+CMGF=1\r"),
		[]byte("AT+CSCS=\"GSM\"\r"),
		[]byte(fmt.Sprintf("AT+CMGS=\"%s\"\r", number)),
		append([]byte(asciiOnly(text)), ctrlZ),
	}
	for _, cmd := range commands {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := p.Write(cmd); err != nil {
			return fmt.Errorf("sms: write to %s: %w", m.port, err)
		}
	}

	if d, ok := p.(interface{ Drain() error }); ok {
		if err := d.Drain(); err != nil {
			return fmt.Errorf("sms: drain %s: %w", m.port, err)
		}
	}
	return nil
}

// E164 normalises a phone number: spaces and dashes are removed, a leading 0
// is replaced by +countryCode and a bare country code gets a '+'.
func E164(number, countryCode string) string {
	ph := strings.TrimSpace(number)
	ph = strings.ReplaceAll(ph, " ", "")
	ph = strings.ReplaceAll(ph, "-", "")
	switch {
	case ph == "":
		return ""
	case strings.HasPrefix(ph, "+"):
		return ph
	case countryCode != "" && strings.HasPrefix(ph, "0"):
		return "+" + countryCode + ph[1:]
	case countryCode != "" && strings.HasPrefix(ph, countryCode):
		return "+" + ph
	default:
		return ph
	}
}

// asciiOnly drops characters the GSM text mode command line cannot carry.
func asciiOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r < 0x80 && r != ctrlZ {
			b.WriteRune(r)
		}
	}
	return b.String()
}
