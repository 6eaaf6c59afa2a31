package haier

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

const (
	TOPIC_BOUND_DEVS         = "BoundDevs"
	TOPIC_HEART_BEAT         = "HeartBeat"
	TOPIC_BATCH_CMD_REQ      = "BatchCmdReq"
	TOPIC_GEN_MSG_DOWN       = "GenMsgDown"
	BUSIN_TYPE_DIGITAL_MODEL = "DigitalModel"
	SERIAL_LENGTH            = 32
)

type Frame struct {
	AgClientId string `json:"agClientId"`
	Topic      string `json:"topic"`
	Content    any    `json:"content"`
}

type BoundDevsContent struct {
	Devs []string `json:"devs"`
}

type HeartBeatContent struct {
	Sn       string `json:"sn"`
	Duration int    `json:"duration"`
}

type BatchCmdReqContent struct {
	Trace string     `json:"trace"`
	Sn    string     `json:"sn"`
	Data  []BatchCmd `json:"data"`
}

type BatchCmd struct {
	Sn           string         `json:"sn"`
	Index        int            `json:"index"`
	DelaySeconds int            `json:"delaySeconds"`
	SubSn        string         `json:"subSn"`
	DeviceId     string         `json:"deviceId"`
	CmdArgs      map[string]any `json:"cmdArgs"`
}

// Delta is the set of attribute values pushed for one device in one frame.
type Delta struct {
	DeviceId   string
	Attributes map[string]string
}

type inboundFrame struct {
	Topic   string          `json:"topic"`
	Content json.RawMessage `json:"content"`
}

type genMsgDownContent struct {
	BusinType string `json:"businType"`
	Data      string `json:"data"`
}

type deviceEnvelope struct {
	Dev  string `json:"dev"`
	Args string `json:"args"`
}

type deltaAttributes struct {
	Attributes []struct {
		Name  string          `json:"name"`
		Value json.RawMessage `json:"value"`
	} `json:"attributes"`
}

func EncodeBoundDevs(agClientId string, deviceIds []string) ([]byte, error) {
	if deviceIds == nil {
		deviceIds = []string{}
	}
	return json.Marshal(Frame{
		AgClientId: agClientId,
		Topic:      TOPIC_BOUND_DEVS,
		Content:    BoundDevsContent{Devs: deviceIds},
	})
}

func EncodeHeartBeat(agClientId string) ([]byte, error) {
	return json.Marshal(Frame{
		AgClientId: agClientId,
		Topic:      TOPIC_HEART_BEAT,
		Content: HeartBeatContent{
			Sn:       RandomSerial(SERIAL_LENGTH),
			Duration: 0,
		},
	})
}

func EncodeBatchCmd(agClientId, deviceId string, args map[string]any) ([]byte, error) {
	sn := RandomSerial(SERIAL_LENGTH)
	return json.Marshal(Frame{
		AgClientId: agClientId,
		Topic:      TOPIC_BATCH_CMD_REQ,
		Content: BatchCmdReqContent{
			Trace: RandomSerial(SERIAL_LENGTH),
			Sn:    sn,
			Data: []BatchCmd{
				{
					Sn:           sn,
					Index:        0,
					DelaySeconds: 0,
					SubSn:        sn + ":0",
					DeviceId:     deviceId,
					CmdArgs:      args,
				},
			},
		},
	})
}

// DecodeFrame extracts the attribute delta carried by a push frame.
// Frames that carry no delta return an error wrapping ErrIgnoredFrame.
func DecodeFrame(data []byte) (*Delta, error) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedFrame, err)
	}
	if frame.Topic != TOPIC_GEN_MSG_DOWN {
		return nil, fmt.Errorf("%w: topic %s", ErrIgnoredFrame, frame.Topic)
	}
	var content genMsgDownContent
	if err := json.Unmarshal(frame.Content, &content); err != nil {
		return nil, fmt.Errorf("%w: content: %s", ErrMalformedFrame, err)
	}
	if content.BusinType != BUSIN_TYPE_DIGITAL_MODEL {
		return nil, fmt.Errorf("%w: businType %s", ErrIgnoredFrame, content.BusinType)
	}

	rawEnvelope, err := base64.StdEncoding.DecodeString(content.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: data: %s", ErrMalformedFrame, err)
	}
	var env deviceEnvelope
	if err := json.Unmarshal(rawEnvelope, &env); err != nil {
		return nil, fmt.Errorf("%w: envelope: %s", ErrMalformedFrame, err)
	}

	compressed, err := base64.StdEncoding.DecodeString(env.Args)
	if err != nil {
		return nil, fmt.Errorf("%w: args: %s", ErrMalformedFrame, err)
	}
	inflated, err := gunzip(compressed)
	if err != nil {
		return nil, fmt.Errorf("%w: inflate: %s", ErrMalformedFrame, err)
	}
	var attrs deltaAttributes
	if err := json.Unmarshal(inflated, &attrs); err != nil {
		return nil, fmt.Errorf("%w: attributes: %s", ErrMalformedFrame, err)
	}

	delta := &Delta{
		DeviceId:   env.Dev,
		Attributes: make(map[string]string, len(attrs.Attributes)),
	}
	for _, attr := range attrs.Attributes {
		// some attributes come without a value
		if len(attr.Value) == 0 || string(attr.Value) == "null" {
			continue
		}
		delta.Attributes[attr.Name] = RawValueString(attr.Value)
	}
	return delta, nil
}

// EncodeDeltaArgs builds the base64(gzip(json)) args blob of a push frame.
func EncodeDeltaArgs(attributes map[string]string) (string, error) {
	type attr struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	}
	payload := struct {
		Attributes []attr `json:"attributes"`
	}{}
	for name, value := range attributes {
		payload.Attributes = append(payload.Attributes, attr{Name: name, Value: value})
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// RawValueString renders a JSON value as the string the snapshot stores.
// Strings are unquoted, anything else keeps its JSON text.
func RawValueString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(raw))
}

func gunzip(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
