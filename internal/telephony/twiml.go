package telephony

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// bridgeCallbackEvents are requested for the operator leg of a bridge.
var bridgeCallbackEvents = []string{"initiated", "ringing", "answered", "completed"}

type response struct {
	XMLName xml.Name `xml:"Response"`
	Pause   *pause   `xml:"Pause,omitempty"`
	Dial    *dial    `xml:"Dial,omitempty"`
	Hangup  *hangup  `xml:"Hangup,omitempty"`
}

type pause struct {
	Length int `xml:"length,attr"`
}

type hangup struct{}

type dial struct {
	AnswerOnBridge bool   `xml:"answerOnBridge,attr"`
	CallerID       string `xml:"callerId,attr,omitempty"`
	Number         number `xml:"Number"`
}

type number struct {
	StatusCallback       string `xml:"statusCallback,attr,omitempty"`
	StatusCallbackEvent  string `xml:"statusCallbackEvent,attr,omitempty"`
	StatusCallbackMethod string `xml:"statusCallbackMethod,attr,omitempty"`
	Value                string `xml:",chardata"`
}

// Bridge describes a bridge instruction to an operator.
type Bridge struct {
	Operator    string
	CallerID    string
	CallbackURL string
}

// BridgeDocument renders a document that dials the operator and reports the
// operator leg's progress to CallbackURL. The Dial carries no action URL, so
// the caller leg simply ends when the bridge does.
func BridgeDocument(b Bridge) ([]byte, error) {
	if strings.TrimSpace(b.Operator) == "" {
		return nil, fmt.Errorf("bridge without operator number")
	}
	doc := response{
		Dial: &dial{
			AnswerOnBridge: true,
			CallerID:       b.CallerID,
			Number: number{
				StatusCallback:       b.CallbackURL,
				StatusCallbackEvent:  strings.Join(bridgeCallbackEvents, " "),
				StatusCallbackMethod: "POST",
				Value:                b.Operator,
			},
		},
	}
	return render(doc)
}

// PauseHangupDocument renders a harmless pause followed by a hangup.
func PauseHangupDocument() []byte {
	out, _ := render(response{Pause: &pause{Length: 1}, Hangup: &hangup{}})
	return out
}

func render(doc response) ([]byte, error) {
	body, err := xml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("render call control: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}
