package common

import (
	"reflect"

	"github.com/bytedance/sonic"
	"github.com/bytedance/sonic/option"
)

var SonicCfg sonic.API

func init() {
	for _, t := range []reflect.Type{
		reflect.TypeOf(JsonRpcRequest{}),
		reflect.TypeOf(JsonRpcResponse{}),
	} {
		if err := sonic.Pretouch(t, option.WithCompileMaxInlineDepth(1)); err != nil {
			panic(err)
		}
	}
	SonicCfg = sonic.Config{
		CopyString:              false,
		NoQuoteTextMarshaler:    true,
		NoValidateJSONMarshaler: true,
		NoValidateJSONSkip:      true,
		EscapeHTML:              false,
		SortMapKeys:             false,
		CompactMarshaler:        true,
		ValidateString:          false,
	}.Froze()
}
