package advice

import "github.com/tliron/commonlog"

var log = commonlog.GetLogger("weft.advice")
