package telecom

import (
	"context"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioSMS implements SMSProvider via the Twilio messaging API.
type TwilioSMS struct {
	client *twilio.RestClient
}

// NewTwilioSMS builds a client from the configured account credentials.
func NewTwilioSMS(username, apiKey string) *TwilioSMS {
	return &TwilioSMS{client: twilio.NewRestClientWithParams(twilio.ClientParams{Username: username, Password: apiKey})}
}

func (p *TwilioSMS) SendSMS(_ context.Context, from, to, message string) (string, error) {
	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(from)
	params.SetTo(to)
	params.SetBody(message)

	resp, err := p.client.Api.CreateMessage(params)
	if err != nil {
		return "", fmt.Errorf("twilio: send sms: %w", err)
	}
	if resp.Sid == nil {
		return "", fmt.Errorf("twilio: send sms: no message sid returned")
	}
	return *resp.Sid, nil
}

// TwilioVoice implements VoiceProvider via the Twilio voice API. Play/DTMF
// nodes update the live call's TwiML rather than creating a new call.
type TwilioVoice struct {
	client *twilio.RestClient
}

func NewTwilioVoice(username, apiKey string) *TwilioVoice {
	return &TwilioVoice{client: twilio.NewRestClientWithParams(twilio.ClientParams{Username: username, Password: apiKey})}
}

func (p *TwilioVoice) InitiateCall(_ context.Context, to, twiml string) (string, error) {
	params := &twilioApi.CreateCallParams{}
	params.SetTo(to)
	params.SetTwiml(twiml)

	resp, err := p.client.Api.CreateCall(params)
	if err != nil {
		return "", fmt.Errorf("twilio: initiate call: %w", err)
	}
	if resp.Sid == nil {
		return "", fmt.Errorf("twilio: initiate call: no call sid returned")
	}
	return *resp.Sid, nil
}

func (p *TwilioVoice) UpdateCall(_ context.Context, callID, twiml string) error {
	params := &twilioApi.UpdateCallParams{}
	params.SetTwiml(twiml)

	if _, err := p.client.Api.UpdateCall(callID, params); err != nil {
		return fmt.Errorf("twilio: update call: %w", err)
	}
	return nil
}

// sayTwiml builds minimal TwiML for a spoken prompt, used by play_ivr.
func sayTwiml(text string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?><Response><Say>%s</Say></Response>`, escapeXML(text))
}

// gatherTwiml builds TwiML that plays a prompt and waits for DTMF input,
// used by collect_dtmf.
func gatherTwiml(prompt string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?><Response><Gather numDigits="1"><Say>%s</Say></Gather></Response>`, escapeXML(prompt))
}

// playTwiml builds TwiML that streams a pre-recorded audio file, used by
// play_ivr when audio_url is set instead of text.
func playTwiml(audioURL string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?><Response><Play>%s</Play></Response>`, escapeXML(audioURL))
}

func escapeXML(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '&':
			out = append(out, "&amp;"...)
		case '<':
			out = append(out, "&lt;"...)
		case '>':
			out = append(out, "&gt;"...)
		default:
			out = append(out, s[i])
		}
	}
	return string(out)
}
