//go:build ibmmq

package ibmmq

import (
	"strings"

	"github.com/ibm-messaging/mq-golang/v5/ibmmq"
	"github.com/makibytes/dlqm/broker/backends"
)

func convertMQMDToBackendMessage(md *ibmmq.MQMD, data []byte, msgHandle ibmmq.MQMessageHandle) *backends.Message {
	result := &backends.Message{
		Data:          data,
		Properties:    make(map[string]any),
		MessageID:     hexID(md.MsgId),
		CorrelationID: hexID(md.CorrelId),
		Priority:      int(md.Priority),
		Persistent:    md.Persistence == int32(ibmmq.MQPER_PERSISTENT),
		DeliveryCount: uint32(md.BackoutCount),
		Timestamp:     putTimestamp(md.PutDate, md.PutTime),
		InternalMetadata: map[string]any{
			"format": strings.TrimSpace(md.Format),
		},
	}
	if appl := strings.TrimSpace(md.PutApplName); appl != "" {
		result.InternalMetadata["putApplName"] = appl
	}

	// Messages moved by the queue manager carry a dead letter header in front of the payload
	if md.Format == ibmmq.MQFMT_DEAD_LETTER_HEADER {
		if hdr, n, err := ibmmq.GetHeader(md, data); err == nil {
			if dlh, ok := hdr.(*ibmmq.MQDLH); ok {
				result.OriginalAddress = strings.TrimSpace(dlh.DestQName)
				result.InternalMetadata["reason"] = dlh.Reason
				result.InternalMetadata["destQMgrName"] = strings.TrimSpace(dlh.DestQMgrName)
				result.InternalMetadata["format"] = strings.TrimSpace(dlh.Format)
				result.Data = data[n:]
			}
		}
	}

	impo := ibmmq.NewMQIMPO()
	impo.Options = ibmmq.MQIMPO_INQ_FIRST
	pd := ibmmq.NewMQPD()
	for {
		name, value, err := msgHandle.InqMP(impo, pd, "%")
		if err != nil {
			break
		}
		// user properties live in the usr folder; jms, mcd and root are MQ internals
		if key, ok := strings.CutPrefix(name, "usr."); ok {
			result.Properties[key] = value
		}
		impo.Options = ibmmq.MQIMPO_INQ_NEXT
	}

	return result
}
