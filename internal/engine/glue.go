package engine

import "github.com/dop251/goja"

// The glue scripts run before the user script. Each captures the host
// dispatch function, removes it from the global object, and publishes the
// script-facing surface on top of the raw ops. The op names passed to the
// dispatch function are the wire contract between host and glue.

const streamGlueSource = `
(function (global) {
	'use strict';

	var op = global.__query_op;
	delete global.__query_op;

	var database = {
		begin: function () {
			return op('database.begin', null);
		},
		next: function (cursor) {
			return op('database.next', cursor);
		},
		more: function (cursor) {
			return op('database.more', cursor);
		},
		send: function (values) {
			if (!Array.isArray(values)) {
				values = [values];
			}
			op('database.send', values);
		},
		forEach: function (fn) {
			var cursor = database.begin();
			while (database.more(cursor)) {
				var page = database.next(cursor);
				cursor = page.cursor;
				for (var i = 0; i < page.rows.length; i++) {
					fn(page.rows[i]);
				}
			}
		},
		all: function () {
			var rows = [];
			database.forEach(function (row) { rows.push(row); });
			return rows;
		}
	};

	global.database = Object.freeze(database);
	global.emit = function () {
		op('database.send', Array.prototype.slice.call(arguments));
	};
})(this);
`

const tableGlueSource = `
(function (global) {
	'use strict';

	var op = global.__query_op;
	delete global.__query_op;

	var database = {
		table: function (name) {
			var handle = op('table.open', name);
			var finished = false;
			return {
				next: function () {
					if (finished) {
						return { done: true };
					}
					var step = op('table.next', handle);
					if (step.done) {
						finished = true;
						op('table.close', handle);
					}
					return step;
				},
				forEach: function (fn) {
					for (var step = this.next(); !step.done; step = this.next()) {
						fn(step.row);
					}
				}
			};
		},
		send: function (values) {
			if (!Array.isArray(values)) {
				values = [values];
			}
			op('database.send', values);
		}
	};

	global.database = Object.freeze(database);
	global.emit = function () {
		op('database.send', Array.prototype.slice.call(arguments));
	};
})(this);
`

var (
	streamGlueProgram = goja.MustCompile("glue.js", streamGlueSource, true)
	tableGlueProgram  = goja.MustCompile("glue_table.js", tableGlueSource, true)
)
