package phpworld

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/sadewadee/phpworld/internal/wire"
)

// Iterator steps a PHP-side iterator obtained via Proxy.Iterate:
// CLASS_GET_ITERATOR to open it, then one CLASS_ITERATE_BEGIN /
// CLASS_ITERATE round trip per element.
type Iterator struct {
	interp  *Interpreter
	id      int32
	started bool
}

// Next advances the iterator, returning its next value (revived like
// any other Proxy result) and whether iteration is already exhausted.
func (it *Iterator) Next(ctx context.Context) (any, bool, error) {
	recordType := wire.TypeClassIterate
	if !it.started {
		recordType = wire.TypeClassIterateBegin
		it.started = true
	}
	raw, undef, err := it.interp.ctrl.Exec(ctx, recordType, []byte(strconv.FormatInt(int64(it.id), 10)))
	if err != nil {
		return nil, false, translateExecError(err)
	}
	if undef {
		return nil, true, nil
	}
	var pair [2]json.RawMessage
	if err := json.Unmarshal(raw, &pair); err != nil {
		return nil, false, localErrorf("decoding iterator step: %v", err)
	}
	var done bool
	if err := json.Unmarshal(pair[1], &done); err != nil {
		return nil, false, localErrorf("decoding iterator done flag: %v", err)
	}
	if done {
		return nil, true, nil
	}
	value, err := it.interp.reviveJSON(pair[0])
	if err != nil {
		return nil, false, err
	}
	return value, false, nil
}
